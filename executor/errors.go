package executor

import (
	"errors"
	"strings"
)

// Kind classifies why a run did not complete.
type Kind string

const (
	KindLoad     Kind = "load"
	KindFaulted  Kind = "faulted"
	KindTimedOut Kind = "timed_out"
	KindCanceled Kind = "canceled"
)

// Sentinels for errors.Is.
var (
	ErrLoad     = &Error{Kind: KindLoad}
	ErrFaulted  = &Error{Kind: KindFaulted}
	ErrTimedOut = &Error{Kind: KindTimedOut}
	ErrCanceled = &Error{Kind: KindCanceled}

	// ErrInstanceUsed is returned when an Instance is run a second time.
	ErrInstanceUsed = errors.New("instance already run")
	// ErrClosed is returned by an Executor after Close.
	ErrClosed = errors.New("executor closed")
)

// Error is the structured error carried by a Result.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')
	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func loadError(op, detail string, cause error) *Error {
	return &Error{Kind: KindLoad, Op: op, Detail: detail, Cause: cause}
}

// IsLoadError reports whether err is a load failure.
func IsLoadError(err error) bool {
	return errors.Is(err, ErrLoad)
}
