// Package agent provides the core generation loop shared by the interaction
// modes of genui.
//
// # Architecture
//
// The agent package is organized into three main components:
//
//   - Core agent (this package): the Agent type, which runs one turn from
//     prompt to published surface
//   - Terminal subpackage (agent/terminal): an interactive CLI that previews
//     surfaces as trees
//   - ACP subpackage (agent/acp): a JSON-RPC server over stdio for renderer
//     processes
//
// # Turns
//
// A turn reserves the session, calls the backend with the prompt and the
// conversation thread, normalizes the response parts into protocol messages,
// resolves them into a surface, commits the result to the session and only
// then publishes it. A failed turn leaves the session as it was, so the
// user can retry or rephrase.
//
// # Usage
//
//	a, err := agent.New(b,
//	    agent.WithPublisher(render.NewTerminal(os.Stdout)),
//	    agent.WithTimeout(30*time.Second),
//	    agent.WithLogger(logger),
//	)
//	if err != nil {
//	    // handle error
//	}
//
//	sess := session.New()
//	turn, err := a.Submit(ctx, sess, "a signup form", agent.ActionNew)
//
// # Errors
//
// Submit returns classified errors from the errors package: KindTimeout and
// KindTransportFailure when the backend fails, KindEmptyResult when the
// response carried no protocol messages and KindMissingRoot when the surface
// cannot be rendered. session.ErrBusy and session.ErrStale are returned
// unchanged.
package agent
