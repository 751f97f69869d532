package types

import "fmt"

// ErrorCode represents a unified error code across memflow.
type ErrorCode string

// Gateway error codes
const (
	ErrGatewayStatus    ErrorCode = "GATEWAY_STATUS"
	ErrGatewayCode      ErrorCode = "GATEWAY_CODE"
	ErrGatewayTransport ErrorCode = "GATEWAY_TRANSPORT"
	ErrGatewayDecode    ErrorCode = "GATEWAY_DECODE"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
)

// Store and pipeline error codes
const (
	ErrStoreIO        ErrorCode = "STORE_IO"
	ErrDispatchFull   ErrorCode = "DISPATCH_FULL"
	ErrDispatchClosed ErrorCode = "DISPATCH_CLOSED"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}
