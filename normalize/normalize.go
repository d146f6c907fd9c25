// Package normalize turns the parts of an agent response into an ordered list
// of protocol messages plus the conversational text around them.
//
// Agents deliver protocol messages in two ways: as data parts tagged with the
// A2UI mime type, or embedded in text after the delimiter line, often wrapped
// in a markdown code fence. Normalization accepts both, in part order, and
// never fails. A part whose JSON cannot be used is skipped and reported as a
// diagnostic so one bad part does not void the rest of the response.
package normalize

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
)

const (
	fence      = "```"
	openTag    = "<text>"
	closeTag   = "</text>"
	wholeInput = -1
)

// Options configures a Normalizer.
type Options struct {
	// MimeTypes are doublestar glob patterns matched against the mime type of
	// data parts. Defaults to the A2UI mime type.
	MimeTypes []string
	Logger    *zap.Logger
}

// Diagnostic describes a part that was skipped, in whole or in part. Err is
// already classified with Kind.
type Diagnostic struct {
	Kind errors.Kind
	// PartIndex is the index of the offending part, or -1 when the problem
	// was found in the concatenated text of all parts.
	PartIndex int
	Err       error
}

func (d Diagnostic) String() string {
	return d.Err.Error()
}

// Result is the outcome of normalizing one response.
type Result struct {
	Messages    []protocol.Message
	Text        string
	Diagnostics []Diagnostic
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	mimeTypes []string
	validator *protocol.Validator
	logger    *zap.Logger
}

// New builds a Normalizer. It fails only on invalid mime type patterns or if
// the message schema cannot be compiled.
func New(opts Options) (*Normalizer, error) {
	mimeTypes := opts.MimeTypes
	if len(mimeTypes) == 0 {
		mimeTypes = []string{protocol.MimeType}
	}
	for _, p := range mimeTypes {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.New("invalid mime type pattern %q", p)
		}
	}
	v, err := protocol.DefaultValidator()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{mimeTypes: mimeTypes, validator: v, logger: logger}, nil
}

// Normalize runs a Normalizer with default options.
func Normalize(parts []protocol.Part) Result {
	n, err := New(Options{})
	if err != nil {
		// Only reachable if the embedded schema is broken; report everything
		// as text rather than fail.
		var text strings.Builder
		for _, p := range parts {
			if p.Kind == protocol.PartText {
				text.WriteString(p.Text)
			}
		}
		return Result{Text: strings.TrimSpace(text.String()), Diagnostics: []Diagnostic{{Kind: errors.KindMalformedPart, PartIndex: wholeInput, Err: errors.Wrapk(errors.KindMalformedPart, err, "normalizer unavailable")}}}
	}
	return n.Normalize(parts)
}

// Normalize processes parts in order. Text parts are concatenated without a
// separator so a delimiter split across two parts is still recognised.
func (n *Normalizer) Normalize(parts []protocol.Part) Result {
	var res Result
	var text strings.Builder

	for i, p := range parts {
		switch p.Kind {
		case protocol.PartData:
			if !n.isProtocolMime(p.MimeType()) {
				n.logger.Debug("Ignoring data part with foreign mime type",
					zap.Int("part", i), zap.String("mimeType", p.MimeType()))
				continue
			}
			n.parseInto(&res, i, p.Data)
		case protocol.PartText:
			before, after, found := strings.Cut(p.Text, protocol.Delimiter)
			if !found {
				text.WriteString(p.Text)
				continue
			}
			text.WriteString(strings.TrimRight(before, " \t\r\n"))
			n.parseInto(&res, i, []byte(stripFence(after)))
		default:
			n.logger.Debug("Ignoring part of unknown kind", zap.Int("part", i), zap.String("kind", string(p.Kind)))
		}
	}

	joined := text.String()
	if len(res.Messages) == 0 {
		if before, after, found := strings.Cut(joined, protocol.Delimiter); found {
			n.parseInto(&res, wholeInput, []byte(stripFence(after)))
			joined = strings.TrimRight(before, " \t\r\n")
		}
	}

	res.Text = stripWrappingTag(joined)
	return res
}

func (n *Normalizer) parseInto(res *Result, index int, doc []byte) {
	msgs, errs := n.validator.ParseMessages(doc)
	res.Messages = append(res.Messages, msgs...)
	for _, err := range errs {
		n.logger.Debug("Skipping malformed protocol payload", zap.Int("part", index), zap.Error(err))
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind:      errors.KindMalformedPart,
			PartIndex: index,
			Err:       errors.Wrapk(errors.KindMalformedPart, err, "part %d", index),
		})
	}
}

func (n *Normalizer) isProtocolMime(mime string) bool {
	for _, pattern := range n.mimeTypes {
		if ok, err := doublestar.Match(pattern, mime); err == nil && ok {
			return true
		}
	}
	return false
}

// stripFence removes a markdown code fence, with or without a "json" tag,
// around a JSON document. Anything after the closing fence is dropped.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fence) {
		return s
	}
	s = strings.TrimPrefix(s, fence)
	s = strings.TrimPrefix(s, "json")
	if end := strings.Index(s, fence); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func stripWrappingTag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, openTag)
	s = strings.TrimSuffix(s, closeTag)
	return strings.TrimSpace(s)
}
