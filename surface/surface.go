// Package surface resolves an ordered list of protocol messages into the
// surfaces they describe.
//
// Resolution is pure and starts from nothing on every call: each turn's
// messages are expected to describe complete surfaces, not patches against
// an earlier result. Binding properties are left as paths; looking values up
// is up to whoever renders the surface.
package surface

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
)

// Surface is a resolved UI: a root component, the components reachable by
// id, and the data tree bindings read from.
type Surface struct {
	SurfaceID  string
	RootID     string
	Styles     map[string]any
	Components map[string]protocol.ComponentNode
	DataModel  any
}

func newSurface(b *protocol.BeginRendering) *Surface {
	styles := make(map[string]any, len(b.Styles))
	for k, v := range b.Styles {
		styles[k] = v
	}
	return &Surface{
		SurfaceID:  b.SurfaceID,
		RootID:     b.Root,
		Styles:     styles,
		Components: map[string]protocol.ComponentNode{},
		DataModel:  map[string]any{},
	}
}

// Component returns the component with the given id.
func (s *Surface) Component(id string) (protocol.ComponentNode, bool) {
	c, ok := s.Components[id]
	return c, ok
}

// Root returns the root component.
func (s *Surface) Root() protocol.ComponentNode {
	return s.Components[s.RootID]
}

// Lookup returns the data model value at path.
func (s *Surface) Lookup(path string) (any, bool) {
	return getPath(s.DataModel, SplitPath(path))
}

// Bindings returns every data path read by the surface's components, sorted
// and without duplicates.
func (s *Surface) Bindings() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range s.Components {
		for _, p := range c.Bindings() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// IDs returns component ids in sorted order.
func (s *Surface) IDs() []string {
	ids := make([]string, 0, len(s.Components))
	for id := range s.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type canonicalSurface struct {
	SurfaceID  string                            `json:"surfaceId"`
	RootID     string                            `json:"root"`
	Styles     map[string]any                    `json:"styles"`
	Components map[string]protocol.ComponentNode `json:"components"`
	DataModel  any                               `json:"dataModel"`
}

// MarshalJSON encodes the surface for renderers.
func (s *Surface) MarshalJSON() ([]byte, error) {
	return json.Marshal(canonicalSurface(*s))
}

// Fingerprint is the hex SHA-256 of the surface's canonical JSON (RFC 8785).
// Equal surfaces have equal fingerprints regardless of how they were built.
func (s *Surface) Fingerprint() (string, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode surface %q", s.SurfaceID)
	}
	canon, err := jcs.Transform(b)
	if err != nil {
		return "", errors.Wrapf(err, "failed to canonicalize surface %q", s.SurfaceID)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
