package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m4xw311/genui/agent"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/render"
	"github.com/m4xw311/genui/session"
)

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent   *agent.Agent
	session *session.Session
	in      io.Reader
	out     io.Writer
	view    *render.Terminal
}

// New creates a new Terminal instance. Surfaces produced by turns reach the
// user through the agent's publisher; out is used for the prompt, errors and
// the /show and /history commands.
func New(a *agent.Agent, sess *session.Session, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		agent:   a,
		session: sess,
		in:      in,
		out:     out,
		view:    render.NewTerminal(out),
	}
}

// Run starts the interactive terminal session
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		t.submit(ctx, initialPrompt, agent.ActionNew)
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}

		// Exit commands
		if userInput == "/quit" || userInput == "/exit" {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.handle(ctx, userInput)
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

func (t *Terminal) handle(ctx context.Context, userInput string) {
	switch {
	case userInput == "/new":
		t.agent.Reset(ctx, t.session)
		fmt.Fprintln(t.out, "Started a new surface.")
	case strings.HasPrefix(userInput, "/new "):
		t.submit(ctx, strings.TrimSpace(strings.TrimPrefix(userInput, "/new ")), agent.ActionNew)
	case userInput == "/show":
		s := t.session.Surface()
		if s == nil {
			fmt.Fprintln(t.out, "No surface yet.")
			return
		}
		fmt.Fprintln(t.out, t.view.Render(s))
	case userInput == "/history":
		history := t.session.History()
		if len(history) == 0 {
			fmt.Fprintln(t.out, "No history yet.")
			return
		}
		for _, m := range history {
			fmt.Fprintf(t.out, "[%s] %s\n", m.Role, m.Content)
		}
	case strings.HasPrefix(userInput, "/"):
		fmt.Fprintf(t.out, "Unknown command %s. Commands: /new [prompt], /show, /history, /quit\n", userInput)
	default:
		t.submit(ctx, userInput, agent.ActionRefine)
	}
}

func (t *Terminal) submit(ctx context.Context, prompt string, action agent.Action) {
	turn, err := t.agent.Submit(ctx, t.session, prompt, action)
	if err != nil {
		fmt.Fprintf(t.out, "Error: %s\n", describe(err))
		return
	}
	for _, d := range turn.Diagnostics {
		fmt.Fprintf(t.out, "Warning: %v\n", d)
	}
}

func describe(err error) string {
	switch errors.KindOf(err) {
	case errors.KindEmptyResult:
		return "no UI produced. Try rephrasing."
	case errors.KindTimeout:
		return "the agent took too long to answer. Try again."
	case errors.KindTransportFailure:
		return "could not reach the agent: " + err.Error()
	}
	if errors.Is(err, session.ErrBusy) {
		return "still working on the previous request."
	}
	return err.Error()
}
