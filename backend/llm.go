package backend

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/llm"
	"github.com/m4xw311/genui/normalize"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
	"github.com/m4xw311/genui/surface"
)

// LLM generates UI by prompting a language model with the A2UI instructions.
// A reply that does not yield a renderable surface is sent back with a
// corrective prompt, up to MaxRetries times.
type LLM struct {
	client       llm.LLMClient
	normalizer   *normalize.Normalizer
	systemPrompt string
	maxRetries   int
	logger       *zap.Logger
}

// LLMOption configures an LLM backend.
type LLMOption func(*LLM)

// WithMaxRetries sets how many corrective retries follow an unusable reply.
func WithMaxRetries(n int) LLMOption {
	return func(b *LLM) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithLogger sets the logger. If not provided, a no-op logger is used.
func WithLogger(logger *zap.Logger) LLMOption {
	return func(b *LLM) {
		if logger != nil {
			b.logger = logger.Named("llm")
		}
	}
}

// WithSystemPrompt replaces the default A2UI instructions.
func WithSystemPrompt(prompt string) LLMOption {
	return func(b *LLM) {
		b.systemPrompt = prompt
	}
}

// NewLLM wraps client as a Backend.
func NewLLM(client llm.LLMClient, opts ...LLMOption) (*LLM, error) {
	if client == nil {
		return nil, errors.New("llm client cannot be nil")
	}
	b := &LLM{
		client:     client,
		maxRetries: 1,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.systemPrompt == "" {
		b.systemPrompt = llm.UIPrompt()
	}
	n, err := normalize.New(normalize.Options{Logger: b.logger})
	if err != nil {
		return nil, err
	}
	b.normalizer = n
	return b, nil
}

// Generate implements Backend. Model errors are returned as is; a reply that
// is still unusable after the last retry is returned as text so the caller
// can report what the model said.
func (b *LLM) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]session.Message, 0, len(req.History)+2)
	messages = append(messages, session.Message{Role: session.RoleSystem, Content: b.systemPrompt})
	messages = append(messages, req.History...)

	query := req.Prompt
	var reply *session.Message
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		var err error
		reply, err = b.client.Chat(ctx, append(messages, session.Message{Role: session.RoleUser, Content: query}))
		if err != nil {
			return nil, err
		}

		problem := b.check(reply.Content)
		if problem == "" {
			break
		}
		b.logger.Warn("Model reply is not a usable A2UI response",
			zap.String("requestID", req.ID), zap.Int("attempt", attempt+1), zap.String("problem", problem))
		query = llm.RetryPrompt(problem, req.Prompt)
	}

	return &Response{Parts: []protocol.Part{protocol.TextPart(reply.Content)}}, nil
}

// check returns a description of what is wrong with content, or "".
func (b *LLM) check(content string) string {
	if !strings.Contains(content, protocol.Delimiter) {
		return "The delimiter '" + protocol.Delimiter + "' was missing."
	}
	res := b.normalizer.Normalize([]protocol.Part{protocol.TextPart(content)})
	if len(res.Diagnostics) > 0 {
		return "The JSON after the delimiter was not valid: " + res.Diagnostics[0].Err.Error() + "."
	}
	if len(res.Messages) == 0 {
		return "The JSON after the delimiter contained no A2UI messages."
	}
	if _, err := surface.Resolve(res.Messages); err != nil {
		return "The A2UI messages did not describe a renderable surface: " + err.Error() + "."
	}
	return ""
}
