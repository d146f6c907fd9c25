package surface

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
)

func parse(t *testing.T, doc string) []protocol.Message {
	t.Helper()
	msgs, errs := protocol.ParseMessages([]byte(doc))
	require.Empty(t, errs)
	return msgs
}

func text(id, value string) protocol.ComponentNode {
	return protocol.NewComponent(id, "Text", map[string]protocol.PropertyValue{"text": protocol.Literal(value)})
}

func TestResolveSingleSurface(t *testing.T) {
	msgs := parse(t, `[
	  {"beginRendering": {"surfaceId": "main", "root": "col", "styles": {"primaryColor": "#00f"}}},
	  {"surfaceUpdate": {"surfaceId": "main", "components": [
	    {"id": "col", "component": {"Column": {"children": {"explicitList": ["a", "b", "ghost"]}}}},
	    {"id": "a", "component": {"Text": {"text": {"path": "/user/name"}}}},
	    {"id": "b", "component": {"Text": {"text": {"literalString": "static"}}}}
	  ]}},
	  {"dataModelUpdate": {"surfaceId": "main", "contents": [{"key": "user", "valueMap": [{"key": "name", "valueString": "Ada"}]}]}}
	]`)

	res := ResolveAll(msgs)
	s, err := res.Primary()
	require.NoError(t, err)

	assert.Equal(t, "main", s.SurfaceID)
	assert.Equal(t, "col", s.RootID)
	assert.Equal(t, "Column", s.Root().Type)
	assert.Equal(t, "#00f", s.Styles["primaryColor"])
	assert.Equal(t, []string{"a", "b", "col"}, s.IDs())

	col, _ := s.Component("col")
	assert.Equal(t, []string{"a", "b", "ghost"}, col.ChildRefs())

	// Bindings stay unresolved on the component; Lookup is for renderers.
	a, _ := s.Component("a")
	assert.Equal(t, protocol.PropertyBinding, a.Properties["text"].Kind)
	name, ok := s.Lookup("/user/name")
	require.True(t, ok)
	assert.Equal(t, "Ada", name)
	assert.Equal(t, []string{"/user/name"}, s.Bindings())

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DanglingReference, res.Diagnostics[0].Kind)
	assert.False(t, errors.IsFatal(errors.KindOf(res.Diagnostics[0].Err())))
}

func TestResolveEmpty(t *testing.T) {
	_, err := Resolve(nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyResult))
}

func TestResolveMissingRoot(t *testing.T) {
	msgs := []protocol.Message{
		protocol.NewBeginRendering("s", "root", nil),
		protocol.NewSurfaceUpdate("s", text("other", "x")),
	}
	_, err := Resolve(msgs)
	assert.True(t, errors.Is(err, &errors.Error{Kind: errors.KindMissingRoot, SurfaceID: "s"}), err)
}

func TestResolveUpdatesWithoutBegin(t *testing.T) {
	msgs := []protocol.Message{
		protocol.NewSurfaceUpdate("orphan", text("t", "x")),
		protocol.NewDataModelUpdate("orphan", "/", map[string]any{}),
	}
	res := ResolveAll(msgs)
	_, err := res.Primary()
	assert.True(t, errors.Is(err, &errors.Error{Kind: errors.KindMissingRoot, SurfaceID: "orphan"}), err)
	require.Len(t, res.Diagnostics, 2)
	for _, d := range res.Diagnostics {
		assert.Equal(t, UnknownSurface, d.Kind)
		assert.True(t, errors.Is(d.Err(), errors.ErrUnknownSurfaceReference))
	}
}

func TestResolveOrderSensitivity(t *testing.T) {
	begin := protocol.NewBeginRendering("s", "t", nil)
	first := protocol.NewSurfaceUpdate("s", text("t", "first"))
	second := protocol.NewSurfaceUpdate("s", text("t", "second"))

	s1, err := Resolve([]protocol.Message{begin, first, second})
	require.NoError(t, err)
	s2, err := Resolve([]protocol.Message{begin, second, first})
	require.NoError(t, err)

	assert.Equal(t, "second", s1.Root().Properties["text"].Literal)
	assert.Equal(t, "first", s2.Root().Properties["text"].Literal)
}

func TestResolveReplacesComponentWholesale(t *testing.T) {
	s, err := Resolve([]protocol.Message{
		protocol.NewBeginRendering("s", "t", nil),
		protocol.NewSurfaceUpdate("s", protocol.NewComponent("t", "Text", map[string]protocol.PropertyValue{
			"text":      protocol.Literal("a"),
			"usageHint": protocol.Literal("h1"),
		})),
		protocol.NewSurfaceUpdate("s", text("t", "b")),
	})
	require.NoError(t, err)
	_, hasHint := s.Root().Properties["usageHint"]
	assert.False(t, hasHint)
}

func TestResolveDataModelPaths(t *testing.T) {
	msgs := []protocol.Message{
		protocol.NewBeginRendering("s", "t", nil),
		protocol.NewSurfaceUpdate("s", text("t", "x")),
		protocol.NewDataModelUpdate("s", "/", map[string]any{"a": map[string]any{"b": 1}, "keep": true}),
		protocol.NewDataModelUpdate("s", "/a/b", 2),
		protocol.NewDataModelUpdate("s", "list", []any{"x", "y"}),
		protocol.NewDataModelUpdate("s", "/list/1", "z"),
		protocol.NewDataModelUpdate("s", "/keep/deeper", "v"),
	}
	s, err := Resolve(msgs)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a":    map[string]any{"b": 2.0},
		"keep": map[string]any{"deeper": "v"},
		"list": []any{"x", "z"},
	}, s.DataModel)

	s, err = Resolve(append(msgs, protocol.NewDataModelUpdate("s", "/", []any{1})))
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, s.DataModel)

	_, ok := s.Lookup("/missing")
	assert.False(t, ok)
}

func TestResolveMultipleSurfaces(t *testing.T) {
	res := ResolveAll([]protocol.Message{
		protocol.NewBeginRendering("one", "t", nil),
		protocol.NewBeginRendering("one", "ignored", nil),
		protocol.NewBeginRendering("two", "missing", nil),
		protocol.NewSurfaceUpdate("one", text("t", "x")),
		protocol.NewSurfaceUpdate("two", text("t", "y")),
	})

	assert.Equal(t, []string{"one", "two"}, res.Order)
	s, err := res.Primary()
	require.NoError(t, err)
	assert.Equal(t, "t", s.RootID)

	assert.Contains(t, res.Failures, "two")
	assert.NotContains(t, res.Surfaces, "two")
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, RedundantBegin, res.Diagnostics[0].Kind)
}

func TestResolveFailedPrimaryDoesNotHideOthers(t *testing.T) {
	res := ResolveAll([]protocol.Message{
		protocol.NewBeginRendering("broken", "nope", nil),
		protocol.NewBeginRendering("fine", "t", nil),
		protocol.NewSurfaceUpdate("fine", text("t", "x")),
	})
	_, err := res.Primary()
	assert.True(t, errors.Is(err, errors.ErrMissingRoot))
	assert.Contains(t, res.Surfaces, "fine")
}

func TestResolveDelete(t *testing.T) {
	res := ResolveAll([]protocol.Message{
		protocol.NewBeginRendering("a", "t", nil),
		protocol.NewSurfaceUpdate("a", text("t", "x")),
		protocol.NewBeginRendering("b", "t", nil),
		protocol.NewSurfaceUpdate("b", text("t", "y")),
		protocol.NewDeleteSurface("a"),
		protocol.NewSurfaceUpdate("a", text("u", "late")),
	})
	assert.Equal(t, []string{"b"}, res.Order)
	s, err := res.Primary()
	require.NoError(t, err)
	assert.Equal(t, "b", s.SurfaceID)

	var kinds []DiagnosticKind
	for _, d := range res.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []DiagnosticKind{SurfaceDeleted, UnknownSurface}, kinds)
}

func TestFingerprintIgnoresConstructionOrder(t *testing.T) {
	a, err := Resolve([]protocol.Message{
		protocol.NewBeginRendering("s", "r", nil),
		protocol.NewSurfaceUpdate("s", text("r", "x"), text("q", "y")),
	})
	require.NoError(t, err)
	b, err := Resolve([]protocol.Message{
		protocol.NewBeginRendering("s", "r", nil),
		protocol.NewSurfaceUpdate("s", text("q", "y")),
		protocol.NewSurfaceUpdate("s", text("r", "x")),
	})
	require.NoError(t, err)

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"root":"r"`)
}

// genBatch builds a message sequence for one surface from generated
// component ids and text values. Components reference nothing, so the batch
// resolves whenever the root id is among them.
func genBatch(ids []string, values []string) []protocol.Message {
	msgs := []protocol.Message{protocol.NewBeginRendering("s", "root", nil)}
	comps := []protocol.ComponentNode{text("root", "r")}
	for i, id := range ids {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		comps = append(comps, text("c"+id, v))
	}
	msgs = append(msgs, protocol.NewSurfaceUpdate("s", comps...))
	for i, v := range values {
		msgs = append(msgs, protocol.NewDataModelUpdate("s", fmt.Sprintf("/k%d", i%3), v))
	}
	return msgs
}

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("resolution is deterministic", prop.ForAll(
		func(ids, values []string) bool {
			msgs := genBatch(ids, values)
			a, errA := Resolve(msgs)
			b, errB := Resolve(msgs)
			if errA != nil || errB != nil {
				return false
			}
			fa, _ := a.Fingerprint()
			fb, _ := b.Fingerprint()
			return fa == fb
		},
		gen.SliceOf(gen.AlphaString()), gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("replaying a batch after itself changes nothing", prop.ForAll(
		func(ids, values []string) bool {
			msgs := genBatch(ids, values)
			once, err := Resolve(msgs)
			if err != nil {
				return false
			}
			twice, err := Resolve(append(append([]protocol.Message{}, msgs...), msgs...))
			if err != nil {
				return false
			}
			f1, _ := once.Fingerprint()
			f2, _ := twice.Fingerprint()
			return f1 == f2
		},
		gen.SliceOf(gen.AlphaString()), gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
