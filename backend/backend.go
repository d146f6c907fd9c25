// Package backend is the outbound boundary to the UI generating agent. A
// Backend takes a prompt plus the conversation so far and returns the raw
// response parts; normalizing and resolving them is the caller's job.
//
// Implementations here talk to a language model directly (LLM), to a remote
// A2A agent (subpackage a2a), or to an MCP server tool (subpackage mcp).
// Scripted is a deterministic double for tests.
package backend

import (
	"context"

	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
)

// Request is one generation request.
type Request struct {
	// ID is chosen by the caller and identifies the request/response pair.
	ID        string
	SessionID string
	Prompt    string
	// History is the conversation thread; assistant turns carry their
	// protocol messages verbatim after the delimiter.
	History []session.Message
}

// Response is the raw agent response.
type Response struct {
	Parts []protocol.Part
}

// Backend generates UI responses. Generate must honour ctx cancellation.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, req Request) (*Response, error)

func (f Func) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
