package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/m4xw311/genui/backend"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/normalize"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/render"
	"github.com/m4xw311/genui/session"
	"github.com/m4xw311/genui/surface"
)

// Action says what a prompt does to the current surface.
type Action string

const (
	// ActionRefine sends the prompt with the conversation so far.
	ActionRefine Action = "refine"
	// ActionNew resets the session and starts from an empty thread.
	ActionNew Action = "new"
)

// DefaultTimeout bounds one backend call.
const DefaultTimeout = 90 * time.Second

// Turn is the outcome of one accepted generation request.
type Turn struct {
	RequestID string
	Text      string
	Messages  []protocol.Message
	Surface   *surface.Surface
	// Fingerprint identifies Surface's content; equal surfaces share it.
	Fingerprint string
	// Diagnostics are the non-fatal problems met while normalizing and
	// resolving the response.
	Diagnostics []error
}

// Agent drives generation turns: it calls the backend, normalizes and
// resolves the response, commits it to the session and publishes it.
type Agent struct {
	Backend    backend.Backend
	Publisher  render.Publisher
	Normalizer *normalize.Normalizer
	Timeout    time.Duration
	Logger     *zap.Logger
}

type Option func(*Agent)

func WithPublisher(p render.Publisher) Option {
	return func(a *Agent) { a.Publisher = p }
}

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(a *Agent) { a.Normalizer = n }
}

// WithTimeout bounds each backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) { a.Timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

func New(b backend.Backend, opts ...Option) (*Agent, error) {
	if b == nil {
		return nil, errors.New("backend is required")
	}
	a := &Agent{
		Backend:   b,
		Publisher: render.Discard,
		Timeout:   DefaultTimeout,
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Normalizer == nil {
		n, err := normalize.New(normalize.Options{Logger: a.Logger})
		if err != nil {
			return nil, err
		}
		a.Normalizer = n
	}
	a.Logger = a.Logger.Named("agent")
	return a, nil
}

// Submit runs one turn. It returns session.ErrBusy when the session already
// has a request in flight and session.ErrStale when the session was reset
// while the request ran. On any error the session's thread and surface are
// left as they were.
func (a *Agent) Submit(ctx context.Context, sess *session.Session, prompt string, action Action) (*Turn, error) {
	if action == ActionNew {
		a.Reset(ctx, sess)
	}
	ticket, err := sess.Begin(prompt)
	if err != nil {
		a.Logger.Info("Rejected submission", zap.String("sessionID", sess.ID), zap.Error(err))
		return nil, err
	}
	logger := a.Logger.With(zap.String("sessionID", sess.ID), zap.String("requestID", ticket.RequestID))
	logger.Debug("Submitting prompt", zap.String("action", string(action)), zap.Int("history", len(ticket.History)))

	turn, err := a.generate(ctx, sess.ID, ticket, logger)
	if err != nil {
		sess.Abort(ticket)
		logger.Warn("Turn failed", zap.String("kind", string(errors.KindOf(err))), zap.Error(err))
		return nil, err
	}

	if err := sess.Commit(ticket, session.Result{Text: turn.Text, Messages: turn.Messages, Surface: turn.Surface}); err != nil {
		if errors.Is(err, session.ErrStale) {
			logger.Info("Discarding result for a reset session")
		}
		return nil, err
	}

	if err := a.Publisher.Publish(ctx, render.Frame{
		SessionID:   sess.ID,
		RequestID:   turn.RequestID,
		Text:        turn.Text,
		Surface:     turn.Surface,
		Fingerprint: turn.Fingerprint,
		Messages:    turn.Messages,
	}); err != nil {
		logger.Warn("Failed to publish surface", zap.Error(err))
	}
	logger.Info("Turn accepted",
		zap.String("surfaceID", turn.Surface.SurfaceID),
		zap.Int("messages", len(turn.Messages)),
		zap.Int("diagnostics", len(turn.Diagnostics)))
	return turn, nil
}

// SubmitAction refines the current surface with a user action raised by the
// renderer.
func (a *Agent) SubmitAction(ctx context.Context, sess *session.Session, action protocol.UserAction) (*Turn, error) {
	return a.Submit(ctx, sess, action.Prompt(), ActionRefine)
}

// Reset clears the session and tells renderers the surface is gone.
func (a *Agent) Reset(ctx context.Context, sess *session.Session) {
	sess.Reset()
	a.Logger.Info("Session reset", zap.String("sessionID", sess.ID))
	if err := a.Publisher.Publish(ctx, render.Frame{SessionID: sess.ID, Messages: []protocol.Message{}}); err != nil {
		a.Logger.Warn("Failed to publish reset", zap.Error(err))
	}
}

func (a *Agent) generate(ctx context.Context, sessionID string, ticket *session.Ticket, logger *zap.Logger) (*Turn, error) {
	callCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	resp, err := a.Backend.Generate(callCtx, backend.Request{
		ID:        ticket.RequestID,
		SessionID: sessionID,
		Prompt:    ticket.Prompt,
		History:   ticket.History,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapk(errors.KindTimeout, err, "agent did not answer within %s", a.Timeout)
		}
		return nil, errors.Wrapk(errors.KindTransportFailure, err, "agent request failed")
	}
	if resp == nil {
		resp = &backend.Response{}
	}

	turn := &Turn{RequestID: ticket.RequestID}
	res := a.Normalizer.Normalize(resp.Parts)
	for _, d := range res.Diagnostics {
		logger.Warn("Skipped malformed part", zap.Int("part", d.PartIndex), zap.Error(d.Err))
		turn.Diagnostics = append(turn.Diagnostics, d.Err)
	}
	turn.Text = res.Text
	turn.Messages = res.Messages
	if len(res.Messages) == 0 {
		return nil, errors.Newk(errors.KindEmptyResult, "no UI produced")
	}

	resolution := surface.ResolveAll(res.Messages)
	for _, d := range resolution.Diagnostics {
		switch d.Kind {
		case surface.RedundantBegin, surface.DanglingReference, surface.SurfaceDeleted:
			logger.Debug("Resolution diagnostic", zap.String("diagnostic", d.String()))
		default:
			logger.Warn("Resolution diagnostic", zap.String("diagnostic", d.String()))
		}
		turn.Diagnostics = append(turn.Diagnostics, d.Err())
	}
	s, err := resolution.Primary()
	if err != nil {
		return nil, err
	}
	turn.Surface = s
	for _, path := range s.Bindings() {
		if _, ok := s.Lookup(path); !ok {
			logger.Debug("Binding has no data yet", zap.String("surfaceID", s.SurfaceID), zap.String("path", path))
		}
	}
	if turn.Fingerprint, err = s.Fingerprint(); err != nil {
		logger.Warn("Failed to fingerprint surface", zap.Error(err))
	}
	return turn, nil
}
