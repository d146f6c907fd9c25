package protocol

import (
	"encoding/json"
	"sort"

	"github.com/m4xw311/genui/errors"
)

// PropertyKind classifies a component property value.
type PropertyKind int

const (
	// PropertyLiteral is a fixed value, either bare or wrapped as
	// literalString, literalNumber or literalBoolean.
	PropertyLiteral PropertyKind = iota
	// PropertyBinding reads its value from the surface data model.
	PropertyBinding
	// PropertyComponentRef names one or more child components by id.
	PropertyComponentRef
	// PropertyTemplate repeats a component once per item of a data list.
	PropertyTemplate
)

func (k PropertyKind) String() string {
	switch k {
	case PropertyLiteral:
		return "literal"
	case PropertyBinding:
		return "binding"
	case PropertyComponentRef:
		return "component_ref"
	case PropertyTemplate:
		return "template"
	}
	return "unknown"
}

// Template describes a repeated child.
type Template struct {
	ComponentID string `json:"componentId"`
	DataBinding string `json:"dataBinding"`
}

// PropertyValue is one classified component property. Raw holds the JSON the
// value was decoded from.
type PropertyValue struct {
	Kind     PropertyKind
	Literal  any
	Path     string
	Refs     []string
	Template *Template
	Raw      json.RawMessage
}

// MarshalJSON writes the original JSON when known.
func (p PropertyValue) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	switch p.Kind {
	case PropertyBinding:
		return json.Marshal(map[string]string{"path": p.Path})
	case PropertyComponentRef:
		return json.Marshal(map[string]any{"explicitList": p.Refs})
	case PropertyTemplate:
		return json.Marshal(map[string]any{"template": p.Template})
	}
	return json.Marshal(p.Literal)
}

// Constructors for property values built in code.

func Literal(v any) PropertyValue {
	return PropertyValue{Kind: PropertyLiteral, Literal: v}
}

func Binding(path string) PropertyValue {
	return PropertyValue{Kind: PropertyBinding, Path: path}
}

func Refs(ids ...string) PropertyValue {
	return PropertyValue{Kind: PropertyComponentRef, Refs: ids}
}

// LiteralString builds the wrapped form, {"literalString": s}.
func LiteralString(s string) PropertyValue {
	raw, _ := json.Marshal(map[string]string{"literalString": s})
	return PropertyValue{Kind: PropertyLiteral, Literal: s, Raw: raw}
}

// Child builds the single-child form, "child": "id".
func Child(id string) PropertyValue {
	raw, _ := json.Marshal(id)
	return PropertyValue{Kind: PropertyComponentRef, Refs: []string{id}, Raw: raw}
}

var literalKeys = []string{"literalString", "literalNumber", "literalBoolean", "literalArray"}

func classifyProperty(name string, raw json.RawMessage) PropertyValue {
	pv := PropertyValue{Kind: PropertyLiteral, Raw: compact(raw)}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return pv
	}
	pv.Literal = v

	if s, ok := v.(string); ok && name == "child" {
		pv.Kind = PropertyComponentRef
		pv.Refs = []string{s}
		pv.Literal = nil
		return pv
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return pv
	}

	if name == "children" {
		if list, ok := obj["explicitList"].([]any); ok {
			pv.Kind = PropertyComponentRef
			pv.Literal = nil
			for _, item := range list {
				if id, ok := item.(string); ok {
					pv.Refs = append(pv.Refs, id)
				}
			}
			return pv
		}
		if tmpl, ok := obj["template"].(map[string]any); ok {
			id, _ := tmpl["componentId"].(string)
			binding, _ := tmpl["dataBinding"].(string)
			pv.Kind = PropertyTemplate
			pv.Literal = nil
			pv.Template = &Template{ComponentID: id, DataBinding: binding}
			return pv
		}
	}

	var literal any
	hasLiteral := false
	for _, k := range literalKeys {
		if lv, ok := obj[k]; ok {
			literal, hasLiteral = lv, true
			break
		}
	}

	if path, ok := obj["path"].(string); ok {
		// A literal next to a path is the initial value for the binding.
		pv.Kind = PropertyBinding
		pv.Path = path
		pv.Literal = literal
		return pv
	}
	if hasLiteral && len(obj) == 1 {
		pv.Literal = literal
	}
	return pv
}

// ComponentNode is one component definition inside a surfaceUpdate.
type ComponentNode struct {
	ID         string
	Type       string
	Weight     *float64
	Properties map[string]PropertyValue
}

// NewComponent builds a component node in code.
func NewComponent(id, typ string, props map[string]PropertyValue) ComponentNode {
	if props == nil {
		props = map[string]PropertyValue{}
	}
	return ComponentNode{ID: id, Type: typ, Properties: props}
}

type componentWire struct {
	ID        string                     `json:"id"`
	Weight    *float64                   `json:"weight,omitempty"`
	Component map[string]json.RawMessage `json:"component"`
}

func (c *ComponentNode) UnmarshalJSON(b []byte) error {
	var w componentWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Component) != 1 {
		return errors.New("component %q must name exactly one type, got %d", w.ID, len(w.Component))
	}
	c.ID = w.ID
	c.Weight = w.Weight
	c.Properties = map[string]PropertyValue{}
	for typ, body := range w.Component {
		c.Type = typ
		var props map[string]json.RawMessage
		if err := json.Unmarshal(body, &props); err != nil {
			return errors.Wrapf(err, "component %q properties", w.ID)
		}
		for name, raw := range props {
			c.Properties[name] = classifyProperty(name, raw)
		}
	}
	return nil
}

func (c ComponentNode) MarshalJSON() ([]byte, error) {
	props := make(map[string]json.RawMessage, len(c.Properties))
	for name, pv := range c.Properties {
		b, err := json.Marshal(pv)
		if err != nil {
			return nil, errors.Wrapf(err, "component %q property %q", c.ID, name)
		}
		props[name] = b
	}
	body, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	return json.Marshal(componentWire{
		ID:        c.ID,
		Weight:    c.Weight,
		Component: map[string]json.RawMessage{c.Type: body},
	})
}

// ChildRefs returns the ids this component refers to, in property name order
// and then list order. Template component ids are included.
func (c ComponentNode) ChildRefs() []string {
	names := make([]string, 0, len(c.Properties))
	for name := range c.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []string
	for _, name := range names {
		pv := c.Properties[name]
		switch pv.Kind {
		case PropertyComponentRef:
			refs = append(refs, pv.Refs...)
		case PropertyTemplate:
			if pv.Template != nil && pv.Template.ComponentID != "" {
				refs = append(refs, pv.Template.ComponentID)
			}
		}
	}
	return refs
}

// Bindings returns the data paths this component reads, sorted.
func (c ComponentNode) Bindings() []string {
	var paths []string
	for _, pv := range c.Properties {
		switch pv.Kind {
		case PropertyBinding:
			paths = append(paths, pv.Path)
		case PropertyTemplate:
			if pv.Template != nil && pv.Template.DataBinding != "" {
				paths = append(paths, pv.Template.DataBinding)
			}
		}
	}
	sort.Strings(paths)
	return paths
}
