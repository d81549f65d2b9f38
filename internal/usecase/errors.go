package usecase

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable class of a failed turn. The handler maps
// it to an HTTP status.
type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by TurnService for every failure. Reason is a stable
// snake_case tag for logs; Err is the underlying cause, if any.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func invalidInput(reason string) *Error {
	return &Error{Code: ErrorInvalidInput, Reason: reason}
}

func upstreamError(reason string, err error) *Error {
	return &Error{Code: ErrorUpstream, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "usecase: " + string(e.Code) + ": " + e.Reason
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c})
// tests the class without caring about the reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && (t.Reason == "" || e.Reason == t.Reason)
}

// EndsSession reports whether the device should hang up. Only a malformed
// request leaves the session open for another try.
func (e *Error) EndsSession() bool {
	return e == nil || e.Code != ErrorInvalidInput
}

// CodeOf returns the code carried by err, or ErrorInternal for anything that
// is not a usecase error or carries an unknown code.
func CodeOf(err error) ErrorCode {
	var ucErr *Error
	if !errors.As(err, &ucErr) {
		return ErrorInternal
	}
	switch ucErr.Code {
	case ErrorInvalidInput, ErrorUpstream:
		return ucErr.Code
	}
	return ErrorInternal
}
