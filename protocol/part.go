package protocol

import "encoding/json"

// Wire constants shared with agents that emit the A2UI text format.
const (
	// Delimiter separates the conversational text of a response from the
	// JSON message list that follows it.
	Delimiter = "---a2ui_JSON---"
	// MimeType marks a data part whose payload is a protocol message.
	MimeType = "application/json+a2ui"
	// ExtensionURI is the A2A extension an agent advertises when it speaks A2UI.
	ExtensionURI = "https://a2ui.org/a2a-extension/a2ui/v0.8"
)

// PartKind discriminates response parts.
type PartKind string

const (
	PartText PartKind = "text"
	PartData PartKind = "data"
	PartFile PartKind = "file"
)

// Part is one element of an agent response.
type Part struct {
	Kind     PartKind        `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both the current "kind" discriminator and the older
// "type" field used by draft A2A schemas.
func (p *Part) UnmarshalJSON(b []byte) error {
	var w struct {
		Kind     PartKind        `json:"kind"`
		Type     PartKind        `json:"type"`
		Text     string          `json:"text"`
		Data     json.RawMessage `json:"data"`
		Metadata map[string]any  `json:"metadata"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p.Kind = w.Kind
	if p.Kind == "" {
		p.Kind = w.Type
	}
	p.Text = w.Text
	p.Data = w.Data
	p.Metadata = w.Metadata
	return nil
}

// MimeType returns metadata.mimeType, or "" when absent.
func (p Part) MimeType() string {
	s, _ := p.Metadata["mimeType"].(string)
	return s
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// DataPart builds a data part carrying the given mime type.
func DataPart(data json.RawMessage, mimeType string) Part {
	p := Part{Kind: PartData, Data: data}
	if mimeType != "" {
		p.Metadata = map[string]any{"mimeType": mimeType}
	}
	return p
}
