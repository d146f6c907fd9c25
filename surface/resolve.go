package surface

import (
	"fmt"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
)

// DiagnosticKind classifies a non-fatal resolution finding.
type DiagnosticKind string

const (
	// UnknownSurface: an update or delete named a surface not begun earlier
	// in the batch. The message was dropped.
	UnknownSurface = DiagnosticKind(errors.KindUnknownSurfaceReference)
	// RedundantBegin: a second beginRendering for a surface already begun.
	// It was ignored.
	RedundantBegin DiagnosticKind = "redundant_begin"
	// SurfaceDeleted: a deleteSurface removed a surface begun in the batch.
	SurfaceDeleted DiagnosticKind = "surface_deleted"
	// DanglingReference: a component refers to a child id that was never
	// defined.
	DanglingReference DiagnosticKind = "dangling_reference"
	// BadDataModel: dataModelUpdate contents could not be decoded.
	BadDataModel DiagnosticKind = "bad_data_model"
)

// Diagnostic is a non-fatal finding. MessageIndex is -1 for findings made
// after all messages were applied.
type Diagnostic struct {
	Kind         DiagnosticKind
	SurfaceID    string
	MessageIndex int
	Detail       string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s (surface %q, message %d): %s", d.Kind, d.SurfaceID, d.MessageIndex, d.Detail)
}

// Err returns the finding as a classified error.
func (d Diagnostic) Err() error {
	return &errors.Error{Kind: errors.Kind(d.Kind), SurfaceID: d.SurfaceID, Msg: d.Detail}
}

// Resolution is the result of resolving one batch of messages.
type Resolution struct {
	// Surfaces holds every surface that resolved, by id.
	Surfaces map[string]*Surface
	// Order lists the ids of all surfaces begun and not deleted, in the order
	// of their first beginRendering, including those that failed.
	Order []string
	// Failures holds the error for each surface that did not resolve.
	Failures    map[string]error
	Diagnostics []Diagnostic

	firstRef string
}

// Primary returns the surface a session renders: the first one begun.
func (r *Resolution) Primary() (*Surface, error) {
	if len(r.Order) == 0 {
		if r.firstRef == "" {
			return nil, errors.Newk(errors.KindEmptyResult, "no protocol messages")
		}
		err := errors.Newk(errors.KindMissingRoot, "no beginRendering for referenced surface")
		err.SurfaceID = r.firstRef
		return nil, err
	}
	id := r.Order[0]
	if err, ok := r.Failures[id]; ok {
		return nil, err
	}
	return r.Surfaces[id], nil
}

// Resolve resolves messages and returns the primary surface.
func Resolve(messages []protocol.Message) (*Surface, error) {
	return ResolveAll(messages).Primary()
}

// ResolveAll applies messages strictly in order, keeping one context per
// surface id, and then checks that every surface's root was defined.
func ResolveAll(messages []protocol.Message) *Resolution {
	r := &Resolution{
		Surfaces: map[string]*Surface{},
		Failures: map[string]error{},
	}
	live := map[string]*Surface{}

	note := func(kind DiagnosticKind, id string, i int, format string, a ...interface{}) {
		r.Diagnostics = append(r.Diagnostics, Diagnostic{Kind: kind, SurfaceID: id, MessageIndex: i, Detail: fmt.Sprintf(format, a...)})
	}

	for i, m := range messages {
		id := m.SurfaceID()
		if r.firstRef == "" {
			r.firstRef = id
		}
		switch {
		case m.BeginRendering != nil:
			if existing, ok := live[id]; ok {
				note(RedundantBegin, id, i, "ignored, root stays %q", existing.RootID)
				continue
			}
			live[id] = newSurface(m.BeginRendering)
			r.Order = append(r.Order, id)

		case m.SurfaceUpdate != nil:
			s, ok := live[id]
			if !ok {
				note(UnknownSurface, id, i, "surfaceUpdate dropped")
				continue
			}
			for _, c := range m.SurfaceUpdate.Components {
				s.Components[c.ID] = c
			}

		case m.DataModelUpdate != nil:
			s, ok := live[id]
			if !ok {
				note(UnknownSurface, id, i, "dataModelUpdate dropped")
				continue
			}
			tree, err := m.DataModelUpdate.Tree()
			if err != nil {
				note(BadDataModel, id, i, "%v", err)
				continue
			}
			s.DataModel = setPath(s.DataModel, SplitPath(m.DataModelUpdate.Path), tree)

		case m.DeleteSurface != nil:
			if _, ok := live[id]; !ok {
				note(UnknownSurface, id, i, "deleteSurface dropped")
				continue
			}
			delete(live, id)
			r.Order = remove(r.Order, id)
			note(SurfaceDeleted, id, i, "removed")
		}
	}

	for _, id := range r.Order {
		s := live[id]
		if _, ok := s.Components[s.RootID]; !ok {
			err := errors.Newk(errors.KindMissingRoot, "root component %q was never defined", s.RootID)
			err.SurfaceID = id
			r.Failures[id] = err
			continue
		}
		r.Surfaces[id] = s
		for _, cid := range s.IDs() {
			for _, ref := range s.Components[cid].ChildRefs() {
				if _, ok := s.Components[ref]; !ok {
					note(DanglingReference, id, -1, "component %q refers to undefined %q", cid, ref)
				}
			}
		}
	}
	return r
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
