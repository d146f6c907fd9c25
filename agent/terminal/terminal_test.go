package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/genui/agent"
	"github.com/m4xw311/genui/backend"
	"github.com/m4xw311/genui/llm"
	"github.com/m4xw311/genui/render"
	"github.com/m4xw311/genui/session"
)

// newTestTerminal wires a terminal to the mock LLM, with every surface
// printed to the returned buffer.
func newTestTerminal(t *testing.T, input string) (*Terminal, *session.Session, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	b, err := backend.NewLLM(&llm.MockLLMClient{})
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	a, err := agent.New(b, agent.WithPublisher(render.NewTerminal(out)))
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	sess := session.NewWithID("test-session")
	return New(a, sess, strings.NewReader(input), out), sess, out
}

func TestTerminalNew(t *testing.T) {
	term, sess, _ := newTestTerminal(t, "")
	if term == nil {
		t.Fatal("Expected terminal instance, got nil")
	}
	if term.session != sess {
		t.Fatal("Terminal session doesn't match the provided session")
	}
}

func TestTerminalRunCommands(t *testing.T) {
	input := strings.Join([]string{
		"make a card",
		"",
		"/show",
		"/history",
		"/new",
		"/show",
		"/history",
		"/bogus",
		"/quit",
		"never read",
	}, "\n")
	term, sess, out := newTestTerminal(t, input)

	if err := term.Run(context.Background(), ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"I am a mock LLM. You said: 'make a card'.",
		"Card #card",
		`text=/prompt → "make a card"`,
		"[user] make a card",
		"[assistant] I am a mock LLM.",
		"Started a new surface.",
		"No surface yet.",
		"No history yet.",
		"Unknown command /bogus",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "Card #card") != 2 {
		t.Errorf("expected the surface once from the turn and once from /show:\n%s", got)
	}
	if sess.Surface() != nil {
		t.Error("Expected /new to clear the surface")
	}
}

func TestTerminalInitialPromptAndNewWithPrompt(t *testing.T) {
	term, sess, out := newTestTerminal(t, "make it red\n/new a list\n")

	if err := term.Run(context.Background(), "a form"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"You said: 'a form'", "You said: 'make it red'", "You said: 'a list'"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	history := sess.History()
	if len(history) != 2 || history[0].Content != "a list" {
		t.Fatalf("Expected history to restart at 'a list', got %+v", history)
	}
	if !strings.Contains(got, "Mock UI #2") {
		t.Errorf("Expected the refinement to see the first turn:\n%s", got)
	}
}

func TestTerminalCancelledContext(t *testing.T) {
	term, _, _ := newTestTerminal(t, "hello\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := term.Run(ctx, ""); err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
