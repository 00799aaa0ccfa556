// Package regerr provides the typed errors shared by the volreg packages.
// Every failure crossing a package boundary carries a Kind so callers can
// branch on the failure class without parsing message text. All errors
// support unwrapping via errors.Is and errors.As.
package regerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// IOError covers unreadable, unwritable or malformed files.
	IOError Kind = iota + 1

	// DimensionMismatch covers incompatible image or field shapes.
	DimensionMismatch

	// ConfigurationError covers a required input missing before an update.
	ConfigurationError

	// UnsupportedArity covers operand counts outside the supported range.
	UnsupportedArity

	// RegistrationFailure covers non-convergence or geometrically
	// incompatible registration inputs.
	RegistrationFailure

	// TypeMismatch covers passing the wrong variant where a specific
	// image or transformation type is required.
	TypeMismatch
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case IOError:
		return "io error"
	case DimensionMismatch:
		return "dimension mismatch"
	case ConfigurationError:
		return "configuration error"
	case UnsupportedArity:
		return "unsupported arity"
	case RegistrationFailure:
		return "registration failure"
	case TypeMismatch:
		return "type mismatch"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across volreg package
// boundaries. Op names the failing operation, e.g. "volume.LoadImage".
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind carried by err, or 0 if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
