// Package diag implements the error taxonomy, thread-local error slot,
// structured logging, metrics, and tracing that the FFI bridge core uses to
// surface failures across the C ABI without unwinding a Go panic through it.
package diag

import "fmt"

// Kind is the stable taxonomy prefix a diagnostic string begins with. Hosts
// parse this prefix to map errors onto their own exception hierarchy.
type Kind string

const (
	KindSyntax   Kind = "SyntaxError"
	KindRuntime  Kind = "RuntimeError"
	KindFFI      Kind = "FFIError"
	KindPanic    Kind = "Panic"
	KindDisposed Kind = "Disposed"
)

// Error is the core's internal error representation. It carries a taxonomy
// Kind alongside the usual wrapped-error chain so internal callers (and
// tests) can branch on Kind directly instead of string-matching the
// rendered diagnostic.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a diag.Error with the given kind and a fmt.Sprintf-formatted
// message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a diag.Error that chains an underlying cause, mirroring
// fmt.Errorf("...: %w", err) for errors that reach a boundary that must
// classify them.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Syntax(format string, args ...any) *Error   { return New(KindSyntax, format, args...) }
func Runtime(format string, args ...any) *Error  { return New(KindRuntime, format, args...) }
func FFI(format string, args ...any) *Error      { return New(KindFFI, format, args...) }
func Panic(format string, args ...any) *Error    { return New(KindPanic, format, args...) }
func Disposed(format string, args ...any) *Error { return New(KindDisposed, format, args...) }

// AsDiag unwraps err looking for a *Error, the way errors.As would, without
// pulling in the errors package's reflection-heavy matching for this single
// concrete type.
func AsDiag(err error) (*Error, bool) {
	for err != nil {
		if de, ok := err.(*Error); ok {
			return de, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
