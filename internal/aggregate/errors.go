package aggregate

import (
	"errors"
	"fmt"
)

// DomainError is a command rejected by Decide. It is a normal outcome, not
// a failure of the system.
type DomainError struct {
	Code    ErrorCode
	Message string
	// AggregateID identifies the entity the command targeted, if any.
	AggregateID string
}

// ErrorCode categorizes domain rejections.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the command targets an aggregate with no stream.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates a create against a non-empty stream.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeRemoved indicates the aggregate was removed.
	ErrCodeRemoved ErrorCode = "REMOVED"
	// ErrCodeIllegalTransition indicates a status change the kind forbids.
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION"
	// ErrCodeInvalid indicates malformed command input.
	ErrCodeInvalid ErrorCode = "INVALID"
	// ErrCodeNoChange indicates a command that would not change state.
	ErrCodeNoChange ErrorCode = "NO_CHANGE"
)

func (e *DomainError) Error() string {
	if e.AggregateID != "" {
		return fmt.Sprintf("%s: %s (aggregate=%s)", e.Code, e.Message, e.AggregateID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Reject builds a *DomainError.
func Reject(code ErrorCode, aggregateID, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), AggregateID: aggregateID}
}

// IsDomainError reports whether err is or wraps a *DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// CodeOf returns the domain error code of err, or "" when err is not a
// domain rejection.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
