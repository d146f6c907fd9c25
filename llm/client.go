package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
)

// LLMClient is the interface for interacting with a Large Language Model.
// Messages with the system role carry instructions; the rest alternate user
// and assistant turns and end with a user turn.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message) (*session.Message, error)
}

// MockLLMClient answers every prompt with a card that echoes it. It needs no
// credentials and is the default client.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message) (*session.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := ""
	turns := 0
	for _, msg := range messages {
		if msg.Role == session.RoleUser {
			prompt = msg.Content
			turns++
		}
	}

	msgs := []protocol.Message{
		protocol.NewBeginRendering("mock", "card", nil),
		protocol.NewSurfaceUpdate("mock",
			protocol.NewComponent("card", "Card", map[string]protocol.PropertyValue{"child": protocol.Child("column")}),
			protocol.NewComponent("column", "Column", map[string]protocol.PropertyValue{"children": protocol.Refs("title", "prompt")}),
			protocol.NewComponent("title", "Text", map[string]protocol.PropertyValue{
				"usageHint": protocol.Literal("h2"),
				"text":      protocol.LiteralString(fmt.Sprintf("Mock UI #%d", turns)),
			}),
			protocol.NewComponent("prompt", "Text", map[string]protocol.PropertyValue{"text": protocol.Binding("/prompt")}),
		),
		protocol.NewDataModelUpdate("mock", "/", map[string]any{"prompt": prompt}),
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	var content strings.Builder
	fmt.Fprintf(&content, "I am a mock LLM. You said: '%s'.\n", prompt)
	content.WriteString(protocol.Delimiter + "\n")
	content.Write(b)
	return &session.Message{Role: session.RoleAssistant, Content: content.String()}, nil
}
