package decompose

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrComputation        = errors.New("computation error")
	ErrStructuralMismatch = errors.New("structural mismatch")
)

// Error provides detailed information about a failed decomposition.
type Error struct {
	Kind    error  // One of ErrInvalidArgument, ErrComputation, ErrStructuralMismatch
	Path    string // Dotted module path, empty for the root or a bare layer
	Details string // Human-readable description
	Cause   error  // Underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, ": module %q", e.Path)
	}
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidArgument, Details: fmt.Sprintf(format, args...)}
}

func computationError(cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrComputation, Details: fmt.Sprintf(format, args...), Cause: cause}
}

func structuralMismatch(path string, cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrStructuralMismatch, Path: path, Details: fmt.Sprintf(format, args...), Cause: cause}
}

// withPath attaches a module path to err if it does not carry one yet.
func withPath(err error, path string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}
