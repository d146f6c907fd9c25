package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/m4xw311/genui/errors"
)

//go:embed schema/message.schema.json
var messageSchema []byte

const schemaURL = "https://a2ui.org/schema/v0.8/message.json"

// Validator checks documents against the message schema before decoding.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded message schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(messageSchema)); err != nil {
		return nil, errors.Wrapf(err, "failed to load message schema")
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile message schema")
	}
	return &Validator{schema: schema}, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// DefaultValidator returns a process-wide validator, compiled on first use.
func DefaultValidator() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewValidator()
	})
	return defaultValidator, defaultErr
}

// ParseMessage parses one message with the default validator.
func ParseMessage(raw []byte) (Message, error) {
	v, err := DefaultValidator()
	if err != nil {
		return Message{}, err
	}
	return v.ParseMessage(raw)
}

// ParseMessages parses a message or message list with the default validator.
func ParseMessages(raw []byte) ([]Message, []error) {
	v, err := DefaultValidator()
	if err != nil {
		return nil, []error{err}
	}
	return v.ParseMessages(raw)
}

// ParseMessage validates and decodes a single message object.
func (v *Validator) ParseMessage(raw []byte) (Message, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Message{}, errors.Wrapf(err, "message is not valid JSON")
	}
	if err := v.schema.Validate(doc); err != nil {
		return Message{}, errors.Wrapf(err, "message does not match protocol schema")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, errors.Wrapf(err, "failed to decode message")
	}
	return Message{
		BeginRendering:  env.BeginRendering,
		SurfaceUpdate:   env.SurfaceUpdate,
		DataModelUpdate: env.DataModelUpdate,
		DeleteSurface:   env.DeleteSurface,
		raw:             compact(raw),
	}, nil
}

// ParseMessages accepts either a JSON array of messages or a single message
// object. Elements that fail validation are reported in errs, by index, and
// the remaining elements are still returned in order. A document that is not
// JSON at all yields no messages and a single error.
func (v *Validator) ParseMessages(raw []byte) (msgs []Message, errs []error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, []error{errors.New("empty document")}
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, []error{errors.Wrapf(err, "message list is not valid JSON")}
		}
		for i, item := range items {
			m, err := v.ParseMessage(item)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "message %d", i))
				continue
			}
			msgs = append(msgs, m)
		}
		return msgs, errs
	case '{':
		m, err := v.ParseMessage(trimmed)
		if err != nil {
			return nil, []error{err}
		}
		return []Message{m}, nil
	}
	return nil, []error{errors.New("document is neither a message object nor a message list")}
}

// Schema returns the message schema document, for inclusion in prompts.
func Schema() []byte {
	return append([]byte(nil), messageSchema...)
}
