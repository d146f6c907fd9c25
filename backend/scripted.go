package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m4xw311/genui/protocol"
)

// Step configures one response in a scripted sequence.
type Step struct {
	Parts []protocol.Part
	Err   error
	// Delay holds the response back; a context that ends first wins.
	Delay time.Duration
	// Release, when set, holds the response until it is closed.
	Release <-chan struct{}
}

// TextStep is a step answering with a single text part.
func TextStep(text string) Step {
	return Step{Parts: []protocol.Part{protocol.TextPart(text)}}
}

// Scripted is a deterministic Backend for tests. It answers requests with
// its steps in order and records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	index    int
	steps    []Step
	requests []Request
}

func NewScripted(steps ...Step) *Scripted {
	cloned := make([]Step, len(steps))
	copy(cloned, steps)
	return &Scripted{steps: cloned}
}

var _ Backend = (*Scripted)(nil)

func (s *Scripted) Generate(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if s.index >= len(s.steps) {
		s.mu.Unlock()
		return nil, fmt.Errorf("script exhausted at step %d", s.index+1)
	}
	current := s.steps[s.index]
	s.index++
	s.mu.Unlock()

	if current.Delay > 0 {
		timer := time.NewTimer(current.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if current.Release != nil {
		select {
		case <-current.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if current.Err != nil {
		return nil, current.Err
	}
	parts := make([]protocol.Part, len(current.Parts))
	copy(parts, current.Parts)
	return &Response{Parts: parts}, nil
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
