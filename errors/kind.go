package errors

import "fmt"

// Kind classifies failures of a generation turn.
type Kind string

const (
	// KindMalformedPart marks a response part whose embedded JSON could not be
	// parsed. The part is skipped; the turn continues.
	KindMalformedPart Kind = "malformed_part"
	// KindEmptyResult marks a response that produced no protocol messages.
	KindEmptyResult Kind = "empty_result"
	// KindMissingRoot marks a surface whose declared root component was never
	// defined.
	KindMissingRoot Kind = "missing_root"
	// KindUnknownSurfaceReference marks an update naming a surface that was
	// not begun earlier in the same batch. The update is dropped.
	KindUnknownSurfaceReference Kind = "unknown_surface_reference"
	// KindTransportFailure marks an unreachable or failing agent.
	KindTransportFailure Kind = "transport_failure"
	// KindTimeout marks an agent call that exceeded the request timeout.
	KindTimeout Kind = "timeout"
)

// IsFatal reports whether an error of the given kind aborts the turn. Kinds
// outside the taxonomy above are diagnostics and never fatal.
func IsFatal(k Kind) bool {
	switch k {
	case KindEmptyResult, KindMissingRoot, KindTransportFailure, KindTimeout:
		return true
	}
	return false
}

// Error is a classified failure. Two *Error values match under errors.Is when
// their kinds are equal, so callers can test against the sentinels below.
type Error struct {
	Kind      Kind
	SurfaceID string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.SurfaceID != "" {
		msg += fmt.Sprintf(" (surface %q)", e.SurfaceID)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.SurfaceID == "" || t.SurfaceID == e.SurfaceID)
}

// Sentinels for errors.Is checks.
var (
	ErrMalformedPart           = &Error{Kind: KindMalformedPart}
	ErrEmptyResult             = &Error{Kind: KindEmptyResult}
	ErrMissingRoot             = &Error{Kind: KindMissingRoot}
	ErrUnknownSurfaceReference = &Error{Kind: KindUnknownSurfaceReference}
	ErrTransportFailure        = &Error{Kind: KindTransportFailure}
	ErrTimeout                 = &Error{Kind: KindTimeout}
)

// Newk creates a classified error.
func Newk(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Wrapk classifies an existing error. If err is nil, Wrapk returns nil.
func Wrapk(kind Kind, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not classified.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return ""
}
