package a2a

import (
	"encoding/json"
	"fmt"

	"github.com/m4xw311/genui/protocol"
)

const jsonRPCVersion = "2.0"

// A2A roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is an A2A message.
type Message struct {
	Kind      string          `json:"kind"`
	Role      string          `json:"role"`
	MessageID string          `json:"messageId"`
	ContextID string          `json:"contextId,omitempty"`
	Parts     []protocol.Part `json:"parts"`
}

// SendParams are the params of message/send. History carries the
// conversation thread so the agent can refine its previous surface.
type SendParams struct {
	Message Message   `json:"message"`
	History []Message `json:"history,omitempty"`
}

// TaskStatus is the status block of a task result.
type TaskStatus struct {
	State   string   `json:"state"`
	Message *Message `json:"message,omitempty"`
}

// Artifact is an output attached to a task.
type Artifact struct {
	ArtifactID string          `json:"artifactId,omitempty"`
	Parts      []protocol.Part `json:"parts"`
}

// sendResult is the union of the task and message results of message/send.
type sendResult struct {
	Kind      string          `json:"kind"`
	Status    *TaskStatus     `json:"status,omitempty"`
	Artifacts []Artifact      `json:"artifacts,omitempty"`
	Parts     []protocol.Part `json:"parts,omitempty"`
}

// parts flattens a result: status message parts first, then artifact parts.
func (r sendResult) parts() []protocol.Part {
	if r.Kind == "message" || (r.Kind == "" && r.Status == nil && r.Artifacts == nil) {
		return r.Parts
	}
	var out []protocol.Part
	if r.Status != nil && r.Status.Message != nil {
		out = append(out, r.Status.Message.Parts...)
	}
	for _, a := range r.Artifacts {
		out = append(out, a.Parts...)
	}
	return out
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  *json.RawMessage `json:"result"`
	Error   *RPCError        `json:"error"`
}

// RPCError is a JSON-RPC error returned by the agent.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// AgentExtension is one extension advertised in an agent card.
type AgentExtension struct {
	URI      string `json:"uri"`
	Required bool   `json:"required,omitempty"`
}

// AgentCard is the subset of the A2A agent card this client reads.
type AgentCard struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Version      string `json:"version"`
	Description  string `json:"description,omitempty"`
	Capabilities struct {
		Streaming  bool             `json:"streaming,omitempty"`
		Extensions []AgentExtension `json:"extensions,omitempty"`
	} `json:"capabilities"`
}

// Supports reports whether the card advertises the extension uri.
func (c *AgentCard) Supports(uri string) bool {
	for _, ext := range c.Capabilities.Extensions {
		if ext.URI == uri {
			return true
		}
	}
	return false
}
