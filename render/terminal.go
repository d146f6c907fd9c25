package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/surface"
)

type terminalStyles struct {
	text      lipgloss.Style
	header    lipgloss.Style
	component lipgloss.Style
	id        lipgloss.Style
	binding   lipgloss.Style
	missing   lipgloss.Style
}

// Terminal prints frames as a component tree. Bindings are shown with the
// value they currently resolve to.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	styles terminalStyles
	drawn  string
}

// NewTerminal creates a terminal renderer writing to out.
func NewTerminal(out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out: out,
		styles: terminalStyles{
			text:      r.NewStyle(),
			header:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
			component: r.NewStyle().Bold(true),
			id:        r.NewStyle().Faint(true),
			binding:   r.NewStyle().Foreground(lipgloss.Color("10")),
			missing:   r.NewStyle().Foreground(lipgloss.Color("9")),
		},
	}
}

// Publish implements Publisher. A surface whose fingerprint matches the one
// drawn last is not drawn again.
func (t *Terminal) Publish(ctx context.Context, f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	if f.Text != "" {
		b.WriteString(t.styles.text.Render(f.Text))
		b.WriteString("\n")
	}
	switch {
	case f.Surface == nil:
		t.drawn = ""
	case f.Fingerprint != "" && f.Fingerprint == t.drawn:
		b.WriteString(t.styles.id.Render("surface " + f.Surface.SurfaceID + " unchanged"))
		b.WriteString("\n")
	default:
		b.WriteString(t.Render(f.Surface))
		b.WriteString("\n")
		t.drawn = f.Fingerprint
	}

	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return errors.Wrapf(err, "failed to write surface to terminal")
	}
	return nil
}

// Render returns the tree view of s.
func (t *Terminal) Render(s *surface.Surface) string {
	root := tree.Root(t.styles.header.Render("surface " + s.SurfaceID)).
		Enumerator(tree.RoundedEnumerator)
	if _, ok := s.Component(s.RootID); !ok {
		root.Child(t.styles.missing.Render("missing root " + s.RootID))
		return root.String()
	}
	w := &walk{path: map[string]bool{}, shown: map[string]bool{}}
	root.Child(t.node(s, s.RootID, w))
	return root.String()
}

// walk tracks one render. A component is expanded once; later references to
// it print as a back-reference so shared subtrees stay linear in size.
type walk struct {
	path  map[string]bool
	shown map[string]bool
}

func (t *Terminal) node(s *surface.Surface, id string, w *walk) any {
	c, ok := s.Component(id)
	if !ok {
		return t.styles.missing.Render("? " + id)
	}
	ref := t.styles.component.Render(c.Type) + " " + t.styles.id.Render("#"+c.ID)
	if w.path[id] {
		return ref + t.styles.missing.Render(" (cycle)")
	}
	if w.shown[id] {
		return ref + t.styles.id.Render(" (see above)")
	}
	w.shown[id] = true
	w.path[id] = true
	defer delete(w.path, id)

	label := ref
	if props := t.properties(s, c); props != "" {
		label += " " + props
	}
	refs := c.ChildRefs()
	if len(refs) == 0 {
		return label
	}
	n := tree.Root(label)
	for _, r := range refs {
		n.Child(t.node(s, r, w))
	}
	return n
}

func (t *Terminal) properties(s *surface.Surface, c protocol.ComponentNode) string {
	names := make([]string, 0, len(c.Properties))
	for name, p := range c.Properties {
		if p.Kind == protocol.PropertyComponentRef {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		p := c.Properties[name]
		switch p.Kind {
		case protocol.PropertyBinding:
			v, ok := s.Lookup(p.Path)
			if !ok {
				parts = append(parts, fmt.Sprintf("%s=%s", name, t.styles.missing.Render(p.Path+" (unset)")))
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%s", name, t.styles.binding.Render(p.Path+" → "+display(v))))
		case protocol.PropertyTemplate:
			parts = append(parts, fmt.Sprintf("%s=each %s as #%s", name, p.Template.DataBinding, p.Template.ComponentID))
		default:
			parts = append(parts, fmt.Sprintf("%s=%s", name, display(p.Literal)))
		}
	}
	return strings.Join(parts, " ")
}

func display(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
