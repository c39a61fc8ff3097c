// Package errs defines the failure kinds surfaced by the progress engine and
// helpers that tag errors with the operation that produced them.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Callers branch on these with errors.Is.
var (
	// ErrNotFound marks a lookup that cannot be satisfied, e.g. a story with no units.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks caller-correctable input problems.
	ErrValidation = errors.New("validation error")
	// ErrStore marks operational failures of the store or a collaborator.
	ErrStore = errors.New("store error")
)

// Error carries the operation name, the failure kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op. Any kind err already carries stays reachable.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Validation is shorthand for a validation failure with a message.
func Validation(op, msg string) error {
	return &Error{Op: op, Kind: ErrValidation, Err: errors.New(msg)}
}

// Newf returns an error of kind with a formatted message.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the failure kind of err, or nil when it carries none.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrStore):
		return ErrStore
	default:
		return nil
	}
}

// Label names the kind of err for metrics and logs.
func Label(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrValidation:
		return "validation"
	case ErrStore:
		return "store"
	default:
		if err == nil {
			return "none"
		}
		return "unknown"
	}
}
