package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType represents the category of an error returned by the
// orchestration layer.
type ErrorType string

const (
	// ErrorTypeInvalidRequest is a local validation failure. No network
	// call was made.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeUnsupportedCapability means the chosen provider does not
	// offer the requested operation. No network call was made.
	ErrorTypeUnsupportedCapability ErrorType = "unsupported_capability"

	// ErrorTypeTransport covers network failures, timeouts and 5xx
	// responses from a provider.
	ErrorTypeTransport ErrorType = "transport_error"

	// ErrorTypeProviderRejected is a 4xx business-rule rejection from a
	// provider, for example an unknown model id.
	ErrorTypeProviderRejected ErrorType = "provider_rejected"

	// ErrorTypeApprovalTimeout records that tool-call consent was not
	// obtained in time. The approval gate resolves it with a default
	// action rather than failing the caller.
	ErrorTypeApprovalTimeout ErrorType = "approval_timeout"

	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeServerError     ErrorType = "server_error"
)

// APIError is a structured error carrying enough context to tell "your
// input was invalid" apart from "the provider is unavailable".
type APIError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code,omitempty"`
	Param     string    `json:"param,omitempty"`
	Message   string    `json:"message"`
	Operation string    `json:"operation,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Status    int       `json:"status,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.Provider != "" || e.Operation != "" {
		b.WriteString(" [")
		b.WriteString(e.Provider)
		if e.Operation != "" {
			if e.Provider != "" {
				b.WriteString(" ")
			}
			b.WriteString(e.Operation)
		}
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Param != "" {
		fmt.Fprintf(&b, " (param: %s)", e.Param)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status: %d)", e.Status)
	}
	return b.String()
}

// WithContext returns a copy of e annotated with the provider and
// operation. Fields that are already set are preserved.
func (e *APIError) WithContext(provider, operation string) *APIError {
	c := *e
	if c.Provider == "" {
		c.Provider = provider
	}
	if c.Operation == "" {
		c.Operation = operation
	}
	return &c
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewUnsupportedError creates an APIError for an operation the provider
// does not offer.
func NewUnsupportedError(provider, operation string) *APIError {
	return &APIError{
		Type:      ErrorTypeUnsupportedCapability,
		Provider:  provider,
		Operation: operation,
		Message:   fmt.Sprintf("provider %q does not support %s", provider, operation),
	}
}

// NewTransportError creates an APIError for an unreachable or failing provider.
func NewTransportError(provider, operation string, status int, message string) *APIError {
	return &APIError{
		Type:      ErrorTypeTransport,
		Provider:  provider,
		Operation: operation,
		Status:    status,
		Message:   message,
	}
}

// NewRejectedError creates an APIError for a 4xx rejection from a provider.
func NewRejectedError(provider, operation string, status int, message string) *APIError {
	return &APIError{
		Type:      ErrorTypeProviderRejected,
		Provider:  provider,
		Operation: operation,
		Status:    status,
		Message:   message,
	}
}

// NewApprovalTimeoutError describes a tool call whose approval window ran out.
func NewApprovalTimeoutError(tool, server string, retries int) *APIError {
	return &APIError{
		Type:      ErrorTypeApprovalTimeout,
		Param:     tool,
		Provider:  server,
		Operation: "approve_tool_call",
		Message:   fmt.Sprintf("no approval received for %s after %d retries", tool, retries),
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// AsAPIError unwraps err into an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsType reports whether err carries an APIError of the given type.
func IsType(err error, t ErrorType) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Type == t
}

// IsRetryable reports whether a caller may retry the failed operation.
// Only transport failures and upstream rate limits qualify; validation,
// capability and rejection errors are final.
func IsRetryable(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	switch apiErr.Type {
	case ErrorTypeTransport:
		return true
	case ErrorTypeTooManyRequests:
		return apiErr.Provider != ""
	}
	return false
}

// MapHTTPStatus classifies an upstream HTTP status into the error taxonomy.
// message should be the provider's own error text when available.
func MapHTTPStatus(provider, operation string, status int, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &APIError{
			Type:      ErrorTypeTooManyRequests,
			Provider:  provider,
			Operation: operation,
			Status:    status,
			Message:   message,
		}
	case status >= 400 && status < 500:
		e := NewRejectedError(provider, operation, status, message)
		if status == http.StatusNotFound {
			e.Code = "not_found"
		}
		return e
	default:
		return NewTransportError(provider, operation, status, message)
	}
}

// MapNetworkError classifies a failed round trip. Context cancellation is
// returned unchanged so callers can match it with errors.Is.
func MapNetworkError(provider, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := NewTransportError(provider, operation, 0, "request timed out")
		e.Code = "timeout"
		return e
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		e := NewTransportError(provider, operation, 0, "request timed out")
		e.Code = "timeout"
		return e
	}
	return NewTransportError(provider, operation, 0, fmt.Sprintf("provider unreachable: %s", err.Error()))
}
