// Package render hands accepted surfaces to whatever displays them: the
// terminal, websocket clients or SSE subscribers.
package render

import (
	"context"
	stderrors "errors"

	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/surface"
)

// Frame is one accepted turn as a renderer sees it.
type Frame struct {
	SessionID string           `json:"sessionId"`
	RequestID string           `json:"requestId"`
	Text      string           `json:"text,omitempty"`
	Surface   *surface.Surface `json:"surface,omitempty"`

	// Fingerprint identifies the surface's content. Renderers can skip
	// redrawing when it matches the frame they last drew.
	Fingerprint string             `json:"fingerprint,omitempty"`
	Messages    []protocol.Message `json:"messages"`
}

// Publisher delivers frames to a renderer.
type Publisher interface {
	Publish(ctx context.Context, f Frame) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, f Frame) error

func (p PublisherFunc) Publish(ctx context.Context, f Frame) error {
	return p(ctx, f)
}

// Fanout publishes to every publisher in order. All of them are tried; the
// errors are joined.
type Fanout []Publisher

func (fo Fanout) Publish(ctx context.Context, f Frame) error {
	var errs []error
	for _, p := range fo {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Discard drops every frame.
var Discard Publisher = PublisherFunc(func(context.Context, Frame) error { return nil })
