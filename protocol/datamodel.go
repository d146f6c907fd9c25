package protocol

import (
	"encoding/json"

	"github.com/m4xw311/genui/errors"
)

// Tree decodes Contents into plain Go values.
//
// Agents send contents either as a bare JSON value or as a typed entry list,
// [{"key": "name", "valueString": "Ada"}, ...], where valueMap nests another
// entry list. Entry lists are folded into map[string]any; anything else is
// returned as decoded.
func (u *DataModelUpdate) Tree() (any, error) {
	if len(u.Contents) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(u.Contents, &v); err != nil {
		return nil, errors.Wrapf(err, "data model contents for surface %q", u.SurfaceID)
	}
	if m, ok := foldEntries(v); ok {
		return m, nil
	}
	return v, nil
}

func foldEntries(v any) (map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make(map[string]any, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		key, ok := entry["key"].(string)
		if !ok {
			return nil, false
		}
		out[key] = entryValue(entry)
	}
	return out, true
}

func entryValue(entry map[string]any) any {
	if s, ok := entry["valueString"]; ok {
		return s
	}
	if n, ok := entry["valueNumber"]; ok {
		return n
	}
	if b, ok := entry["valueBoolean"]; ok {
		return b
	}
	if nested, ok := entry["valueMap"]; ok {
		if m, ok := foldEntries(nested); ok {
			return m
		}
		if list, ok := nested.([]any); ok && len(list) == 0 {
			return map[string]any{}
		}
		return nested
	}
	return nil
}
