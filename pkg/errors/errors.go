package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal          = NewError("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrConfiguration     = NewError("CONFIGURATION_ERROR", "invalid configuration", http.StatusInternalServerError)
	ErrQueueNotFound     = NewError("QUEUE_NOT_FOUND", "queue does not exist", http.StatusNotFound)
	ErrDuplicateHandler  = NewError("DUPLICATE_HANDLER", "handler already registered for event", http.StatusConflict)
	ErrInvalidHandler    = NewError("INVALID_HANDLER", "handler must accept the message", http.StatusBadRequest)
	ErrTransport         = NewError("TRANSPORT_ERROR", "transport request failed", http.StatusBadGateway)
	ErrLockStore         = NewError("LOCK_STORE_ERROR", "lock store request failed", http.StatusServiceUnavailable)
	ErrNotInitialized    = NewError("NOT_INITIALIZED", "component is not initialized", http.StatusServiceUnavailable)
	ErrFilterPolicyDrift = NewError("FILTER_POLICY_MISMATCH", "subscription filter policy does not match configuration", http.StatusConflict)
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
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
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

// Is matches on Code so that errors.Is(err, ErrDuplicateHandler) works for
// copies produced by WithCause/WithDetail.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return !e.fatalByCode()
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return e.fatalByCode()
}

func (e *Error) fatalByCode() bool {
	switch e.Code {
	case ErrValidation.Code, ErrConfiguration.Code, ErrQueueNotFound.Code,
		ErrDuplicateHandler.Code, ErrInvalidHandler.Code, ErrFilterPolicyDrift.Code:
		return true
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithMessage(msg string) *Error {
	return e.WithDetail("message", msg)
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsConfiguration(err error) bool {
	return hasCode(err, ErrConfiguration.Code) ||
		hasCode(err, ErrQueueNotFound.Code) ||
		hasCode(err, ErrFilterPolicyDrift.Code)
}

func IsQueueNotFound(err error) bool {
	return hasCode(err, ErrQueueNotFound.Code)
}

func IsDuplicateHandler(err error) bool {
	return hasCode(err, ErrDuplicateHandler.Code)
}

func IsInvalidHandler(err error) bool {
	return hasCode(err, ErrInvalidHandler.Code)
}

// IsFatal reports whether err carries a fatal classification anywhere in its chain.
func IsFatal(err error) bool {
	var fatalErr FatalError
	if errors.As(err, &fatalErr) {
		return fatalErr.IsFatal()
	}
	return false
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
