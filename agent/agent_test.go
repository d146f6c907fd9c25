package agent

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/m4xw311/genui/backend"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/render"
	"github.com/m4xw311/genui/session"
	"github.com/m4xw311/genui/surface"
)

func reply(text, surfaceID, label string) string {
	return text + "\n" + protocol.Delimiter + "\n```json\n" +
		`[{"beginRendering":{"surfaceId":"` + surfaceID + `","root":"root"}},` +
		`{"surfaceUpdate":{"surfaceId":"` + surfaceID + `","components":[{"id":"root","component":{"Text":{"text":{"literalString":"` + label + `"}}}}]}}]` +
		"\n```"
}

type recorder struct {
	mu     sync.Mutex
	frames []render.Frame
}

func (r *recorder) Publish(ctx context.Context, f render.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Frames() []render.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]render.Frame(nil), r.frames...)
}

func newAgent(t *testing.T, b backend.Backend, opts ...Option) (*Agent, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithPublisher(rec), WithLogger(zaptest.NewLogger(t))}, opts...)
	a, err := New(b, opts...)
	require.NoError(t, err)
	return a, rec
}

func TestSubmitCommitsAndPublishes(t *testing.T) {
	b := backend.NewScripted(
		backend.TextStep(reply("Here is a card.", "s1", "v1")),
		backend.TextStep(reply("Made it bigger.", "s1", "v2")),
	)
	a, rec := newAgent(t, b)
	sess := session.NewWithID("sess")

	turn, err := a.Submit(context.Background(), sess, "a card", ActionRefine)
	require.NoError(t, err)
	assert.Equal(t, "Here is a card.", turn.Text)
	assert.Len(t, turn.Messages, 2)
	assert.Equal(t, "s1", turn.Surface.SurfaceID)
	assert.Empty(t, turn.Diagnostics)
	assert.Same(t, turn.Surface, sess.Surface())
	assert.Len(t, sess.History(), 2)

	frames := rec.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "sess", frames[0].SessionID)
	assert.Equal(t, turn.RequestID, frames[0].RequestID)
	want, err := turn.Surface.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, turn.Fingerprint)
	assert.Equal(t, want, frames[0].Fingerprint)

	next, err := a.Submit(context.Background(), sess, "bigger", ActionRefine)
	require.NoError(t, err)
	assert.NotEqual(t, turn.Fingerprint, next.Fingerprint)

	reqs := b.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].History)
	require.Len(t, reqs[1].History, 2)
	assert.Equal(t, "a card", reqs[1].History[0].Content)
	assert.Contains(t, reqs[1].History[1].Content, protocol.Delimiter)
	assert.Equal(t, "sess", reqs[1].SessionID)
	assert.Len(t, sess.History(), 4)
}

func TestSubmitNewResetsFirst(t *testing.T) {
	b := backend.NewScripted(
		backend.TextStep(reply("one", "s1", "v1")),
		backend.TextStep(reply("two", "s2", "v2")),
	)
	a, rec := newAgent(t, b)
	sess := session.New()

	_, err := a.Submit(context.Background(), sess, "first", ActionRefine)
	require.NoError(t, err)
	turn, err := a.Submit(context.Background(), sess, "something else", ActionNew)
	require.NoError(t, err)

	assert.Empty(t, b.Requests()[1].History)
	assert.Equal(t, "s2", turn.Surface.SurfaceID)
	assert.Len(t, sess.History(), 2)

	frames := rec.Frames()
	require.Len(t, frames, 3)
	assert.Nil(t, frames[1].Surface)
}

func TestSubmitFailuresLeaveSessionUnchanged(t *testing.T) {
	tests := []struct {
		name string
		step backend.Step
		kind errors.Kind
	}{
		{"transport", backend.Step{Err: stderrors.New("connection refused")}, errors.KindTransportFailure},
		{"timeout", backend.Step{Delay: time.Second}, errors.KindTimeout},
		{"no messages", backend.TextStep("Sorry, I can't help with that."), errors.KindEmptyResult},
		{"only malformed", backend.TextStep("x " + protocol.Delimiter + " [{"), errors.KindEmptyResult},
		{"missing root", backend.TextStep("x" + protocol.Delimiter + `{"beginRendering":{"surfaceId":"s","root":"nowhere"}}`), errors.KindMissingRoot},
		{"update without begin", backend.TextStep("x" + protocol.Delimiter + `{"deleteSurface":{"surfaceId":"s"}}`), errors.KindMissingRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := backend.NewScripted(backend.TextStep(reply("ok", "s0", "before")), tt.step)
			a, rec := newAgent(t, b, WithTimeout(50*time.Millisecond))
			sess := session.New()
			first, err := a.Submit(context.Background(), sess, "first", ActionRefine)
			require.NoError(t, err)

			_, err = a.Submit(context.Background(), sess, "second", ActionRefine)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
			assert.True(t, errors.IsFatal(errors.KindOf(err)))

			assert.Same(t, first.Surface, sess.Surface())
			assert.Len(t, sess.History(), 2)
			assert.False(t, sess.Busy())
			assert.Len(t, rec.Frames(), 1)
		})
	}
}

func TestSubmitKeepsDiagnostics(t *testing.T) {
	good := reply("fine", "s", "v")
	b := backend.NewScripted(backend.Step{Parts: []protocol.Part{
		protocol.TextPart("broken" + protocol.Delimiter + "{nope"),
		protocol.TextPart(good),
	}})
	a, _ := newAgent(t, b)
	turn, err := a.Submit(context.Background(), session.New(), "p", ActionRefine)
	require.NoError(t, err)
	require.Len(t, turn.Diagnostics, 1)
	assert.ErrorIs(t, turn.Diagnostics[0], errors.ErrMalformedPart)
	assert.Equal(t, 1, strings.Count(turn.Diagnostics[0].Error(), string(errors.KindMalformedPart)))
	assert.Equal(t, "s", turn.Surface.SurfaceID)
}

func TestSubmitLogsResolutionDiagnostics(t *testing.T) {
	doc := "ok\n" + protocol.Delimiter + "\n" +
		`[{"beginRendering":{"surfaceId":"s","root":"col"}},` +
		`{"beginRendering":{"surfaceId":"s","root":"col"}},` +
		`{"surfaceUpdate":{"surfaceId":"s","components":[{"id":"col","component":{"Column":{"children":{"explicitList":["ghost"]}}}}]}},` +
		`{"dataModelUpdate":{"surfaceId":"other","contents":[]}}]`
	core, logs := observer.New(zapcore.DebugLevel)
	a, _ := newAgent(t, backend.NewScripted(backend.TextStep(doc)), WithLogger(zap.New(core)))

	turn, err := a.Submit(context.Background(), session.New(), "p", ActionRefine)
	require.NoError(t, err)
	assert.Len(t, turn.Diagnostics, 3)

	levels := map[string]zapcore.Level{}
	for _, e := range logs.FilterMessage("Resolution diagnostic").All() {
		d := e.ContextMap()["diagnostic"].(string)
		levels[d[:strings.Index(d, " ")]] = e.Level
	}
	assert.Equal(t, map[string]zapcore.Level{
		string(surface.RedundantBegin):    zapcore.DebugLevel,
		string(surface.DanglingReference): zapcore.DebugLevel,
		string(surface.UnknownSurface):    zapcore.WarnLevel,
	}, levels)
}

func TestSubmitWhileBusy(t *testing.T) {
	release := make(chan struct{})
	b := backend.NewScripted(
		backend.Step{Parts: []protocol.Part{protocol.TextPart(reply("slow", "s", "v"))}, Release: release},
	)
	a, _ := newAgent(t, b)
	sess := session.New()

	done := make(chan error, 1)
	go func() {
		_, err := a.Submit(context.Background(), sess, "slow", ActionRefine)
		done <- err
	}()
	require.Eventually(t, func() bool { return len(b.Requests()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, sess.Busy())

	_, err := a.Submit(context.Background(), sess, "impatient", ActionRefine)
	assert.ErrorIs(t, err, session.ErrBusy)
	assert.Len(t, b.Requests(), 1)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, sess.History(), 2)
}

func TestLateResultAfterResetIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	b := backend.NewScripted(
		backend.Step{Parts: []protocol.Part{protocol.TextPart(reply("late", "old", "v"))}, Release: release},
		backend.TextStep(reply("fresh", "new", "v")),
	)
	a, rec := newAgent(t, b)
	sess := session.New()

	done := make(chan error, 1)
	go func() {
		_, err := a.Submit(context.Background(), sess, "slow", ActionRefine)
		done <- err
	}()
	require.Eventually(t, func() bool { return len(b.Requests()) == 1 }, 5*time.Second, 5*time.Millisecond)

	turn, err := a.Submit(context.Background(), sess, "start over", ActionNew)
	require.NoError(t, err)
	assert.Equal(t, "new", turn.Surface.SurfaceID)

	close(release)
	assert.ErrorIs(t, <-done, session.ErrStale)
	assert.Equal(t, "new", sess.Surface().SurfaceID)
	assert.Len(t, sess.History(), 2)
	for _, f := range rec.Frames() {
		assert.NotEqual(t, "late", f.Text)
	}
}

func TestSubmitAction(t *testing.T) {
	b := backend.NewScripted(backend.TextStep(reply("thanks", "s", "done")))
	a, _ := newAgent(t, b)
	_, err := a.SubmitAction(context.Background(), session.New(), protocol.UserAction{
		Name:    protocol.SubmitFormAction,
		Context: map[string]any{"name": "Ada", "age": 36},
	})
	require.NoError(t, err)
	assert.Equal(t, "User submitted a form with the following data: age: 36, name: Ada", b.Requests()[0].Prompt)
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
