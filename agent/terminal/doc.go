// Package terminal implements the command-line interface (CLI) mode for genui.
//
// Users type prompts and see each accepted surface printed as a component
// tree. Plain input refines the current surface; the conversation so far is
// sent along so the agent can regenerate it with the change applied.
//
// # Usage
//
//	a, err := agent.New(b, agent.WithPublisher(render.NewTerminal(os.Stdout)))
//	if err != nil {
//	    // handle error
//	}
//
//	term := terminal.New(a, session.New(), os.Stdin, os.Stdout)
//	err = term.Run(ctx, initialPrompt)
//
// # Commands
//
//   - /new: discard the surface and the conversation
//   - /new <prompt>: discard both and start over with prompt
//   - /show: print the current surface again
//   - /history: print the conversation thread
//   - /quit, /exit: leave
package terminal
