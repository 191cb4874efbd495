// Package errs defines the two error kinds the pipeline reports: problems with
// what the user asked for, and failures that indicate a bug.
package errs

import (
	"errors"
	"fmt"
)

// InputError is returned when an input value is invalid or incorrect.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

// InternalError is returned when something happens that never should.
type InternalError struct {
	Msg string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *InternalError) Unwrap() error { return e.Err }

// Input formats an InputError.
func Input(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// WrapInput wraps err as an InputError with the given message.
func WrapInput(err error, format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// Internal formats an InternalError.
func Internal(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// IsInput reports whether any error in err's chain is an InputError.
func IsInput(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}

// IsInternal reports whether any error in err's chain is an InternalError.
func IsInternal(err error) bool {
	var target *InternalError
	return errors.As(err, &target)
}
