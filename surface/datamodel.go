package surface

import (
	"strconv"
	"strings"
)

// SplitPath splits a data model path into segments. Leading, trailing and
// repeated slashes are ignored, so "/user/name", "user/name" and
// "user//name/" are the same path. The root is "" or "/".
func SplitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(strings.TrimSpace(path), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// setPath returns root with the value at segs replaced by v. Intermediate
// nodes that are missing or not containers become objects.
func setPath(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	switch node := root.(type) {
	case map[string]any:
		node[segs[0]] = setPath(node[segs[0]], segs[1:], v)
		return node
	case []any:
		if i, ok := index(segs[0], len(node)); ok {
			node[i] = setPath(node[i], segs[1:], v)
			return node
		}
	}
	return map[string]any{segs[0]: setPath(nil, segs[1:], v)}
}

func getPath(root any, segs []string) (any, bool) {
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, ok := index(seg, len(node))
			if !ok {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func index(seg string, n int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
