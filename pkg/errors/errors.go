package errors

import (
	"errors"
	"fmt"
)

// The consumer distinguishes three failure kinds. Malformed events are
// acknowledged and skipped, dependency-missing failures are retried in
// process and escalate to broker redelivery, infrastructure failures are
// acknowledged and surfaced through logs and metrics only.
var (
	ErrMalformedEvent    = NewError("MALFORMED_EVENT", "event payload is malformed")
	ErrDependencyMissing = NewError("DEPENDENCY_MISSING", "referenced entity is not yet visible")
	ErrProvisioning      = NewError("PROVISIONING_FAILURE", "tenant schema provisioning failed")
	ErrInternal          = NewError("INTERNAL_ERROR", "internal error")
	ErrConflict          = NewError("CONFLICT", "resource conflict")
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code    string
	Message string
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error may clear on its own given time.
// Only the eventual-consistency class qualifies; malformed payloads and
// infrastructure failures never do.
func (e *Error) IsRetryable() bool {
	return e.Code == ErrDependencyMissing.Code
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

// cloneDetails gives a derived error its own map. The sentinels above are
// shared by every concurrent partition worker, so a derived error must
// never write into the sentinel's map: that would race, and leak one
// message's detail text into another message's error.
func cloneDetails(details map[string]interface{}) map[string]interface{} {
	cloned := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		cloned[k] = v
	}
	return cloned
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Details = cloneDetails(e.Details)
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = cloneDetails(e.Details)
	err.Details[key] = value
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func is(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsMalformed(err error) bool {
	return is(err, ErrMalformedEvent.Code)
}

func IsDependencyMissing(err error) bool {
	return is(err, ErrDependencyMissing.Code)
}

func IsProvisioning(err error) bool {
	return is(err, ErrProvisioning.Code)
}

func IsConflict(err error) bool {
	return is(err, ErrConflict.Code)
}
