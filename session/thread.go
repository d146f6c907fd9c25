package session

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Thread is the conversation carried to the agent on refinement. After every
// successful turn it holds user/assistant pairs, so its length is even.
type Thread struct {
	messages []Message
}

// FormatAssistantContent renders an assistant turn: the text, if any, then the
// delimiter line and the exact message list as JSON.
func FormatAssistantContent(text string, messages []protocol.Message) (string, error) {
	if messages == nil {
		messages = []protocol.Message{}
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(messages); err != nil {
		return "", errors.Wrapf(err, "failed to serialize protocol messages")
	}
	content := protocol.Delimiter + "\n" + strings.TrimSuffix(b.String(), "\n")
	if text != "" {
		content = text + "\n" + content
	}
	return content, nil
}

// AppendTurn records a successful turn. Nothing is appended on error.
func (t *Thread) AppendTurn(prompt, text string, messages []protocol.Message) error {
	content, err := FormatAssistantContent(text, messages)
	if err != nil {
		return err
	}
	t.messages = append(t.messages,
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: content},
	)
	return nil
}

// SerializeForNextRequest returns a copy of the turns to send as history.
func (t *Thread) SerializeForNextRequest() []Message {
	return append([]Message{}, t.messages...)
}

// Reset empties the thread.
func (t *Thread) Reset() {
	t.messages = nil
}

// Len returns the number of turns.
func (t *Thread) Len() int {
	return len(t.messages)
}
