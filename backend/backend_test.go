package backend

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/m4xw311/genui/llm"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
)

const validReply = "Here.\n" + protocol.Delimiter + "\n" +
	`[{"beginRendering":{"surfaceId":"s","root":"t"}},{"surfaceUpdate":{"surfaceId":"s","components":[{"id":"t","component":{"Text":{"text":{"literalString":"hi"}}}}]}}]`

type fakeClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]session.Message
}

var _ llm.LLMClient = (*fakeClient)(nil)

func (f *fakeClient) Chat(_ context.Context, messages []session.Message) (*session.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]session.Message(nil), messages...))
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return &session.Message{Role: session.RoleAssistant, Content: reply}, nil
}

func TestLLMBackendValidReply(t *testing.T) {
	client := &fakeClient{replies: []string{validReply}}
	b, err := NewLLM(client, WithLogger(zaptest.NewLogger(t)), WithSystemPrompt("SYSTEM"))
	require.NoError(t, err)

	history := []session.Message{
		{Role: session.RoleUser, Content: "first"},
		{Role: session.RoleAssistant, Content: validReply},
	}
	resp, err := b.Generate(context.Background(), Request{ID: "r1", Prompt: "make it blue", History: history})
	require.NoError(t, err)
	require.Len(t, resp.Parts, 1)
	assert.Equal(t, validReply, resp.Parts[0].Text)

	require.Len(t, client.calls, 1)
	sent := client.calls[0]
	require.Len(t, sent, 4)
	assert.Equal(t, session.Message{Role: session.RoleSystem, Content: "SYSTEM"}, sent[0])
	assert.Equal(t, history, sent[1:3])
	assert.Equal(t, session.Message{Role: session.RoleUser, Content: "make it blue"}, sent[3])
}

func TestLLMBackendRetriesWithCorrectivePrompt(t *testing.T) {
	tests := []struct {
		name    string
		bad     string
		problem string
	}{
		{"missing delimiter", "Sorry, just text.", "delimiter"},
		{"bad json", "x\n" + protocol.Delimiter + "\n[{", "not valid"},
		{"no messages", "x\n" + protocol.Delimiter + "\n[]", "no A2UI messages"},
		{"missing root", "x\n" + protocol.Delimiter + "\n" + `[{"beginRendering":{"surfaceId":"s","root":"nope"}}]`, "renderable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{replies: []string{tt.bad, validReply}}
			b, err := NewLLM(client)
			require.NoError(t, err)

			resp, err := b.Generate(context.Background(), Request{Prompt: "a form"})
			require.NoError(t, err)
			assert.Equal(t, validReply, resp.Parts[0].Text)

			require.Len(t, client.calls, 2)
			retry := client.calls[1][len(client.calls[1])-1]
			assert.True(t, strings.HasPrefix(retry.Content, "Your previous response was invalid."), retry.Content)
			assert.Contains(t, retry.Content, tt.problem)
			assert.True(t, strings.HasSuffix(retry.Content, "Please retry: 'a form'"))
		})
	}
}

func TestLLMBackendGivesUpAfterMaxRetries(t *testing.T) {
	client := &fakeClient{replies: []string{"still just text"}}
	b, err := NewLLM(client, WithMaxRetries(2))
	require.NoError(t, err)

	resp, err := b.Generate(context.Background(), Request{Prompt: "a form"})
	require.NoError(t, err)
	assert.Equal(t, "still just text", resp.Parts[0].Text)
	assert.Len(t, client.calls, 3)
}

func TestLLMBackendReturnsClientErrors(t *testing.T) {
	boom := stderrors.New("boom")
	b, err := NewLLM(&fakeClient{err: boom})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, boom)

	_, err = NewLLM(nil)
	assert.Error(t, err)
}

func TestLLMBackendDefaultPrompt(t *testing.T) {
	client := &fakeClient{replies: []string{validReply}}
	b, err := NewLLM(client)
	require.NoError(t, err)
	_, err = b.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, llm.UIPrompt(), client.calls[0][0].Content)
}

func TestScripted(t *testing.T) {
	boom := stderrors.New("down")
	s := NewScripted(TextStep("one"), Step{Err: boom})

	resp, err := s.Generate(context.Background(), Request{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", resp.Parts[0].Text)

	_, err = s.Generate(context.Background(), Request{ID: "b"})
	assert.ErrorIs(t, err, boom)

	_, err = s.Generate(context.Background(), Request{ID: "c"})
	assert.EqualError(t, err, "script exhausted at step 3")

	reqs := s.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "c", reqs[2].ID)
}

func TestScriptedHonoursContext(t *testing.T) {
	s := NewScripted(Step{Delay: time.Hour}, Step{Release: make(chan struct{})})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	_, err = s.Generate(ctx2, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
