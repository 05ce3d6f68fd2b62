// Package errkind classifies errors raised by the swap engine into the
// kinds enumerated in the error-handling design: transport, protocol,
// state, insufficient funds, persistence and generic failures. Handlers
// switch on Kind to decide whether a failure is retryable on the next
// status update or block tick, or whether it must surface as a terminal
// swap outcome.
package errkind

import goerrors "github.com/go-errors/errors"

// Kind enumerates the error categories from the error-handling design.
type Kind uint8

const (
	// Generic carries a message for uncategorized failures.
	Generic Kind = iota

	// Transport covers network/socket failures and timeouts. The
	// calling loop retries; it is never surfaced as a terminal swap
	// failure on its own.
	Transport

	// Protocol covers unexpected server payloads, signature
	// verification failures, and preimage mismatches. Fatal to the
	// operation in progress.
	Protocol

	// State covers disallowed state transitions and persistence races
	// such as AlreadyClaimed. Benign duplicates are downgraded to a
	// warning by the caller.
	State

	// InsufficientFunds is returned from prepare_* calls when the
	// wallet or swap amounts can't support the request.
	InsufficientFunds

	// Persist covers storage failures. The in-flight operation is
	// aborted; no partial state is observable.
	Persist
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case State:
		return "state"
	case InsufficientFunds:
		return "insufficient_funds"
	case Persist:
		return "persist"
	default:
		return "generic"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// category without string matching.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

// Unwrap exposes the wrapped cause so errors.Is/As work through a Kind.
func (e *Error) Unwrap() error { return e.cause }

// New constructs a typed error with a stack-carrying cause via
// go-errors/errors, matching the wrapping style used across the wider
// dependency stack for transport/persistence failures.
func New(kind Kind, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = goerrors.Wrap(cause, 1)
	}
	return &Error{Kind: kind, Message: message, cause: wrapped}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if se, ok := err.(*Error); ok {
		e = se
	} else {
		return false
	}
	return e.Kind == kind
}
