package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a provider error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates the credential was rejected.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeNotFound indicates a model or resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates the provider throttled the caller.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer covers every other provider or transport failure.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeInvalidAPIKey     ErrorCode = "invalid_api_key"
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrorCodeModelNotFound     ErrorCode = "model_not_found"
)

// APIError is the canonical error returned across the model gateway boundary.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode is the upstream HTTP status, when there was one
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status a handler should answer with.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the actionable text shown to the user for this error.
func (e *APIError) UserMessage() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "Invalid API key. Please check your credentials and try again."
	case ErrorTypeRateLimit:
		return "Rate limit exceeded. Please wait a moment before trying again."
	case ErrorTypeNotFound:
		return "The selected model was not found: " + e.Message
	default:
		return "The model provider returned an error: " + e.Message
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithStatusCode sets the upstream HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message).
		WithCode(ErrorCodeInvalidAPIKey)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).
		WithCode(ErrorCodeRateLimitExceeded)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// ErrorFromStatus classifies an upstream HTTP status: 401 is a credential
// error, 429 is throttling, 404 a missing model, anything else generic.
func ErrorFromStatus(status int, message string) *APIError {
	var e *APIError
	switch status {
	case http.StatusUnauthorized:
		e = ErrAuthentication(message)
	case http.StatusTooManyRequests:
		e = ErrRateLimit(message)
	case http.StatusNotFound:
		e = NewAPIError(ErrorTypeNotFound, message).WithCode(ErrorCodeModelNotFound)
	case http.StatusBadRequest:
		e = ErrInvalidRequest(message)
	default:
		e = ErrServer(message)
	}
	return e.WithStatusCode(status)
}

// AsAPIError unwraps err into the canonical type. Errors that are not already
// APIErrors are reported as server errors.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrServer(err.Error())
}

// IsAuthentication reports whether err is a rejected credential.
func IsAuthentication(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeAuthentication
}

// IsRateLimit reports whether err is provider throttling.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeRateLimit
}

// FailureKindOf maps a gateway error onto the degraded-result vocabulary.
func FailureKindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case IsAuthentication(err):
		return FailureAuthentication
	case IsRateLimit(err):
		return FailureRateLimit
	default:
		return FailureProvider
	}
}
