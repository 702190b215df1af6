package llm

import "errors"

// Errors from LLM calls are classified so the stage engine knows whether a
// failed extraction is worth retrying. Rate limits, timeouts, and 5xx
// responses are transient; schema violations and auth failures are fatal.

type errorClass int

const (
	classTransient errorClass = iota
	classFatal
)

type classifiedError struct {
	class errorClass
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// NewTransientError marks an error as retryable.
func NewTransientError(err error) error {
	return &classifiedError{class: classTransient, err: err}
}

// NewFatalError marks an error as permanent. The caller should not retry.
func NewFatalError(err error) error {
	return &classifiedError{class: classFatal, err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.class == classTransient
}

// IsFatal reports whether err was marked permanent.
func IsFatal(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.class == classFatal
}
