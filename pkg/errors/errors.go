package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedEvent   = NewError("MALFORMED_EVENT", "transaction event cannot be decoded", http.StatusUnprocessableEntity).AsFatal()
	ErrStoreUnavailable = NewError("STORE_UNAVAILABLE", "store unavailable", http.StatusServiceUnavailable).AsRetryable()
	ErrPolicyViolation  = NewError("POLICY_VIOLATION", "earn-rate policy violation", http.StatusBadRequest)
	ErrNotFound         = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation       = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal         = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrConflict         = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrTooManyRequests  = NewError("RATE_LIMITED", "too many requests", http.StatusTooManyRequests)
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

	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that errors.Is(err, ErrStoreUnavailable) holds for
// any copy produced by WithCause or WithDetail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
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
	}
	return e.Code != ErrValidation.Code && e.Code != ErrNotFound.Code
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}
	return e.Code == ErrValidation.Code || e.Code == ErrNotFound.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	retryable := true
	err.retryable = &retryable
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	retryable := false
	err.retryable = &retryable
	return err
}

func (e *Error) clone() *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	return &err
}

// StoreUnavailable wraps a backend failure, keeping the operation name in the
// error details.
func StoreUnavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return ErrStoreUnavailable.WithCause(cause).WithDetail("operation", op)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsMalformedEvent(err error) bool {
	return hasCode(err, ErrMalformedEvent.Code)
}

func IsStoreUnavailable(err error) bool {
	return hasCode(err, ErrStoreUnavailable.Code)
}

func IsPolicyViolation(err error) bool {
	return hasCode(err, ErrPolicyViolation.Code)
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func ToErrorResponse(err error) ErrorResponse {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := ErrorResponse{
		Error:     appErr.Message,
		ErrorCode: appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response.Details = appErr.Details
	}

	return response
}
