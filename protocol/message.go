package protocol

import (
	"bytes"
	"encoding/json"
)

// Kind names a protocol message variant by its JSON key.
type Kind string

const (
	KindBeginRendering  Kind = "beginRendering"
	KindSurfaceUpdate   Kind = "surfaceUpdate"
	KindDataModelUpdate Kind = "dataModelUpdate"
	KindDeleteSurface   Kind = "deleteSurface"
)

// BeginRendering declares a surface and its root component.
type BeginRendering struct {
	SurfaceID string         `json:"surfaceId"`
	Root      string         `json:"root"`
	Styles    map[string]any `json:"styles,omitempty"`
}

// SurfaceUpdate adds or replaces component definitions by id.
type SurfaceUpdate struct {
	SurfaceID  string          `json:"surfaceId"`
	Components []ComponentNode `json:"components"`
}

// DataModelUpdate sets the value at Path in a surface's data tree. An empty
// path or "/" addresses the whole tree.
type DataModelUpdate struct {
	SurfaceID string          `json:"surfaceId"`
	Path      string          `json:"path,omitempty"`
	Contents  json.RawMessage `json:"contents"`
}

// DeleteSurface removes a surface.
type DeleteSurface struct {
	SurfaceID string `json:"surfaceId"`
}

// Message is the protocol message union. Exactly one field is set on a
// message produced by ParseMessage.
type Message struct {
	BeginRendering  *BeginRendering
	SurfaceUpdate   *SurfaceUpdate
	DataModelUpdate *DataModelUpdate
	DeleteSurface   *DeleteSurface

	raw json.RawMessage
}

type envelope struct {
	BeginRendering  *BeginRendering  `json:"beginRendering,omitempty"`
	SurfaceUpdate   *SurfaceUpdate   `json:"surfaceUpdate,omitempty"`
	DataModelUpdate *DataModelUpdate `json:"dataModelUpdate,omitempty"`
	DeleteSurface   *DeleteSurface   `json:"deleteSurface,omitempty"`
}

// Kind reports which variant is set.
func (m Message) Kind() Kind {
	switch {
	case m.BeginRendering != nil:
		return KindBeginRendering
	case m.SurfaceUpdate != nil:
		return KindSurfaceUpdate
	case m.DataModelUpdate != nil:
		return KindDataModelUpdate
	case m.DeleteSurface != nil:
		return KindDeleteSurface
	}
	return ""
}

// SurfaceID returns the surface the message addresses.
func (m Message) SurfaceID() string {
	switch {
	case m.BeginRendering != nil:
		return m.BeginRendering.SurfaceID
	case m.SurfaceUpdate != nil:
		return m.SurfaceUpdate.SurfaceID
	case m.DataModelUpdate != nil:
		return m.DataModelUpdate.SurfaceID
	case m.DeleteSurface != nil:
		return m.DeleteSurface.SurfaceID
	}
	return ""
}

// Raw returns the JSON the message was parsed from, or nil for messages
// built in code.
func (m Message) Raw() json.RawMessage { return m.raw }

// MarshalJSON reproduces the parsed document when there is one.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(envelope{
		BeginRendering:  m.BeginRendering,
		SurfaceUpdate:   m.SurfaceUpdate,
		DataModelUpdate: m.DataModelUpdate,
		DeleteSurface:   m.DeleteSurface,
	})
}

// UnmarshalJSON parses with the default validator.
func (m *Message) UnmarshalJSON(b []byte) error {
	parsed, err := ParseMessage(b)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Constructors used by agents written in Go and by tests.

func NewBeginRendering(surfaceID, root string, styles map[string]any) Message {
	return Message{BeginRendering: &BeginRendering{SurfaceID: surfaceID, Root: root, Styles: styles}}
}

func NewSurfaceUpdate(surfaceID string, components ...ComponentNode) Message {
	return Message{SurfaceUpdate: &SurfaceUpdate{SurfaceID: surfaceID, Components: components}}
}

// NewDataModelUpdate marshals contents; values that cannot be marshalled
// become JSON null.
func NewDataModelUpdate(surfaceID, path string, contents any) Message {
	b, err := json.Marshal(contents)
	if err != nil {
		b = []byte("null")
	}
	return Message{DataModelUpdate: &DataModelUpdate{SurfaceID: surfaceID, Path: path, Contents: b}}
}

func NewDeleteSurface(surfaceID string) Message {
	return Message{DeleteSurface: &DeleteSurface{SurfaceID: surfaceID}}
}

func compact(b []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return append(json.RawMessage(nil), b...)
	}
	return buf.Bytes()
}
