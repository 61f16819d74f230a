package http

import (
	"fmt"
	"net/http"
)

// AppError is an error the API reports to clients. Status is carried in
// the response envelope, not the HTTP status line.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InsufficientDataError reports that the exchange returned too few bars.
func InsufficientDataError(field, message string) *AppError {
	return NewAppError("ERR_INSUFFICIENT_DATA", field, message, http.StatusUnprocessableEntity)
}

// UnavailableError reports a market data source that cannot serve now.
func UnavailableError(field, message string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", field, message, http.StatusServiceUnavailable)
}

func TimeoutError(message string) *AppError {
	return NewAppError("ERR_TIMEOUT", "", message, http.StatusGatewayTimeout)
}

func RateLimitedError(retryAfterSec float64) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests).
		WithParam("retry_after_seconds", retryAfterSec)
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}
