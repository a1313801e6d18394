package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrorNeedsClarification ErrorCode = "NEEDS_CLARIFICATION"
	ErrorRateLimited        ErrorCode = "RATE_LIMITED"
	ErrorUpstream           ErrorCode = "UPSTREAM_ERROR"
	ErrorSearchFailed       ErrorCode = "SEARCH_FAILED"
	ErrorSearchUnavailable  ErrorCode = "SEARCH_UNAVAILABLE"
	ErrorInternal           ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	// Missing lists the parameter fields to ask the user for; set only for
	// ErrorNeedsClarification.
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func clarificationError(reason string, missing []string, err error) *Error {
	return &Error{Code: ErrorNeedsClarification, Reason: reason, Missing: missing, Err: err}
}

// CodeOf returns the code of a usecase error, or ErrorInternal for any other error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}
