// Package errkind defines the closed set of error kinds surfaced by the
// object store and fetch engine, so that callers can distinguish "sha
// not found" from "bytes do not parse" from "network failed" without
// string-matching error messages.
package errkind

import "fmt"

// A Kind is one of the five error categories the object store and fetch
// engine ever return.
type Kind int

const (
	// ObjectBroken means a bytestream does not conform to the
	// documented shape of a Git object (bad header, bad mode, bad sha,
	// bad size, bad time, bad delta instruction).
	ObjectBroken Kind = iota
	// PackBroken means a structural inconsistency was found at
	// pack/idx scope: trailer mismatch, dangling OFS_DELTA, missing
	// REF_DELTA base, or an offset outside the file.
	PackBroken
	// NotFound means the requested sha is not present in any pack or
	// loose object.
	NotFound
	// TransportError means a network or wire-protocol error occurred:
	// connection refused, truncated response, or a sideband-3 message.
	TransportError
	// IOError means a filesystem error occurred at read or
	// atomic-write time.
	IOError
)

func (k Kind) String() string {
	switch k {
	case ObjectBroken:
		return "object broken"
	case PackBroken:
		return "pack broken"
	case NotFound:
		return "not found"
	case TransportError:
		return "transport error"
	case IOError:
		return "I/O error"
	default:
		return "unknown error kind"
	}
}

// An Error pairs one of the Kind values above with a descriptive
// message and, where available, the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap creates an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, cause error, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), Cause: cause}
}

// KindOf returns the Kind carried by err if it is (or wraps) an *Error,
// and ok=false otherwise.
func KindOf(err error) (kind Kind, ok bool) {
	for err != nil {
		if e, isErr := err.(*Error); isErr {
			return e.Kind, true
		}
		u, isWrapper := err.(interface{ Unwrap() error })
		if !isWrapper {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}
