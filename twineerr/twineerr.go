// Package twineerr classifies the failure modes the workflow engine and
// dispatch loop need to branch on, without introducing a heavyweight
// errors framework: a wrapped stdlib error plus a small sentinel kind.
package twineerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure classes the dispatch loop and pipeline
// distinguish between when deciding ack/reject, retry, or fatal exit.
type Kind int

const (
	// Unknown is the zero value; treated the same as UpstreamFailure by callers.
	Unknown Kind = iota
	// BadConfig is a missing or malformed configuration value; fatal at startup.
	BadConfig
	// NoHandler means no handler was registered for a MIME type or processor name.
	NoHandler
	// ParseFailure means an input handler's RDF parse produced no usable graphs.
	ParseFailure
	// UpstreamFailure means SPARQL, S3, or SQL returned a non-success response.
	UpstreamFailure
	// ProtocolViolation means a bulk handler returned an out-of-range pointer.
	ProtocolViolation
	// Transient means broker I/O failed; the loop retries or exits per the broker's semantics.
	Transient
)

func (k Kind) String() string {
	switch k {
	case BadConfig:
		return "bad_config"
	case NoHandler:
		return "no_handler"
	case ParseFailure:
		return "parse_failure"
	case UpstreamFailure:
		return "upstream_failure"
	case ProtocolViolation:
		return "protocol_violation"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can switch on
// failure class without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error, wrapping err (which may be nil, in
// which case the message alone carries the failure).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted underlying message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, returning Unknown if err is nil or
// was not produced by this package.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Unknown
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
