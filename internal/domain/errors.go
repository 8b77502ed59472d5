package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure modes the engine can raise (spec.md §7).
type Kind int

const (
	// KindConnectionLost covers socket I/O failure or EOF mid-frame.
	KindConnectionLost Kind = iota
	// KindHandshakeRejected covers a non-zero server status at H2.
	KindHandshakeRejected
	// KindAuthFailed covers a non-zero status at H5. The receive path does
	// not compare packet MACs, so no receive raises it.
	KindAuthFailed
	// KindMalformed covers a fixed constant that doesn't match, or a length
	// field that violates a declared constraint.
	KindMalformed
	// KindInvalidArgument covers a caller-supplied payload precondition
	// violation. Recoverable: no session mutation has happened yet.
	KindInvalidArgument
	// KindIOShort covers a short read/write where an exact count was required.
	KindIOShort
)

func (k Kind) String() string {
	switch k {
	case KindConnectionLost:
		return "connection-lost"
	case KindHandshakeRejected:
		return "handshake-rejected"
	case KindAuthFailed:
		return "auth-failed"
	case KindMalformed:
		return "malformed"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindIOShort:
		return "io-short"
	default:
		return "unknown"
	}
}

// Error is the engine's error type. Op names the failing operation
// ("handshake.sendClientHello", "transport.receivePacket", ...); Cause,
// when set, is the underlying error and is reachable via errors.Unwrap.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &domain.Error{Kind: domain.KindAuthFailed}) match
// any *Error of that Kind, regardless of Op or Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Errf builds a new *Error, optionally wrapping cause.
func Errf(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf reports the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
