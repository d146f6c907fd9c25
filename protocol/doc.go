// Package protocol defines the A2UI wire vocabulary exchanged with a UI
// generating agent: response parts, the protocol message union
// (beginRendering, surfaceUpdate, dataModelUpdate, deleteSurface), component
// nodes and their property values, and client user actions.
//
// Every message is validated against an embedded structural JSON Schema
// before it is decoded, and a message that does not match is rejected with an
// error instead of being partially decoded. Only structure is checked; whether a component type or property
// makes sense to a renderer is not this package's concern.
//
// A parsed Message remembers the JSON it was parsed from, compacted, and
// marshals back to that document. Encoders that escape HTML will still
// rewrite <, > and &; the session thread encodes with escaping off so a
// message list is echoed to the agent verbatim on the next turn.
package protocol
