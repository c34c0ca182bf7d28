// Package errs defines the error kinds shared by the decision pipeline.
//
// Every failure that crosses a package boundary is either one of the kind
// sentinels below or an *Error carrying one, so callers can branch with
// errors.Is regardless of how deeply the cause was wrapped.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrData marks malformed or insufficient input data.
	ErrData = errors.New("data error")
	// ErrUpstreamUnavailable marks a failed call to an external provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrGeneration marks a language model response that could not be used.
	ErrGeneration = errors.New("generation error")
	// ErrNotFound marks a missing job, ticker or settings row.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks a storage failure.
	ErrPersistence = errors.New("persistence error")
	// ErrJobTerminal is returned when a finished job is asked to run again.
	ErrJobTerminal = errors.New("job already finished")
	// ErrConflict marks a uniqueness violation such as a duplicate symbol.
	ErrConflict = errors.New("conflict")
)

// Error attaches an operation name and a kind to an underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool { return e.Kind == target }

// Wrap returns nil when err is nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New builds an *Error with a formatted message as its cause.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrConflict, ErrJobTerminal, ErrData, ErrUpstreamUnavailable, ErrGeneration, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
