package session

import (
	stderrors "errors"
	"sync"

	"github.com/google/uuid"

	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/surface"
)

var (
	// ErrBusy is returned by Begin while another request is in flight.
	ErrBusy = stderrors.New("session busy: a request is already in flight")
	// ErrStale is returned by Commit for a ticket issued before the last Reset.
	ErrStale = stderrors.New("stale result: session was reset after the request was issued")
)

// Ticket identifies one in-flight request. It carries the history snapshot
// that must accompany the prompt.
type Ticket struct {
	RequestID string
	Prompt    string
	History   []Message

	generation uint64
}

// Result is what a successful turn commits.
type Result struct {
	Text     string
	Messages []protocol.Message
	Surface  *surface.Surface
}

// Session holds one user's conversation and current surface. All methods are
// safe for concurrent use; at most one request is in flight at a time.
type Session struct {
	ID string

	mu         sync.Mutex
	thread     Thread
	surface    *surface.Surface
	messages   []protocol.Message
	generation uint64
	inflight   *Ticket
}

// New creates a session with a random id.
func New() *Session {
	return NewWithID(uuid.New().String())
}

// NewWithID creates a session with the given id.
func NewWithID(id string) *Session {
	return &Session{ID: id}
}

// Begin reserves the session for a request. It fails with ErrBusy when a
// request is already in flight; the submission is rejected, not queued.
func (s *Session) Begin(prompt string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		return nil, ErrBusy
	}
	t := &Ticket{
		RequestID:  uuid.New().String(),
		Prompt:     prompt,
		History:    s.thread.SerializeForNextRequest(),
		generation: s.generation,
	}
	s.inflight = t
	return t, nil
}

// Commit applies a successful result: the turn is appended to the thread and
// the surface replaced. A ticket from before the last Reset is rejected with
// ErrStale and changes nothing.
func (s *Session) Commit(t *Ticket, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == nil || t.generation != s.generation || s.inflight != t {
		return ErrStale
	}
	s.inflight = nil
	if err := s.thread.AppendTurn(t.Prompt, r.Text, r.Messages); err != nil {
		return err
	}
	s.surface = r.Surface
	s.messages = r.Messages
	return nil
}

// Abort releases the session after a failed request. Thread and surface are
// left as they were. Aborting a stale ticket does nothing.
func (s *Session) Abort(t *Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == t {
		s.inflight = nil
	}
}

// Reset clears the thread and surface. A request in flight is orphaned: its
// result will be rejected as stale, and the session accepts a new request
// immediately.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.thread.Reset()
	s.surface = nil
	s.messages = nil
	s.inflight = nil
}

// Surface returns the current surface, or nil.
func (s *Session) Surface() *surface.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

// Messages returns the protocol messages the current surface was resolved from.
func (s *Session) Messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.messages...)
}

// History returns a copy of the conversation thread.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.SerializeForNextRequest()
}

// Busy reports whether a request is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}
