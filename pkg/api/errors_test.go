package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIErrorInterface(t *testing.T) {
	var _ error = &APIError{}
}

func TestAPIErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			"with param",
			&APIError{Type: ErrorTypeInvalidRequest, Param: "model", Message: "is required"},
			"invalid_request: is required (param: model)",
		},
		{
			"with provider context",
			&APIError{Type: ErrorTypeTransport, Provider: "openai", Operation: "list_models", Status: 503, Message: "unavailable"},
			"transport_error [openai list_models]: unavailable (status: 503)",
		},
		{
			"operation only",
			&APIError{Type: ErrorTypeInvalidRequest, Operation: "get_model", Message: "id is required"},
			"invalid_request [get_model]: id is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithContextPreservesExistingFields(t *testing.T) {
	orig := NewInvalidRequestError("id", "id is required")
	got := orig.WithContext("anthropic", "get_model")
	if got.Provider != "anthropic" || got.Operation != "get_model" {
		t.Errorf("context not applied: %+v", got)
	}
	if orig.Provider != "" {
		t.Error("WithContext mutated the original error")
	}

	again := got.WithContext("other", "other_op")
	if again.Provider != "anthropic" || again.Operation != "get_model" {
		t.Errorf("existing context overwritten: %+v", again)
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
		wantCode string
	}{
		{http.StatusBadRequest, ErrorTypeProviderRejected, ""},
		{http.StatusUnauthorized, ErrorTypeProviderRejected, ""},
		{http.StatusNotFound, ErrorTypeProviderRejected, "not_found"},
		{http.StatusTooManyRequests, ErrorTypeTooManyRequests, ""},
		{http.StatusInternalServerError, ErrorTypeTransport, ""},
		{http.StatusBadGateway, ErrorTypeTransport, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := MapHTTPStatus("gemini", "list_models", tt.status, "")
			if err.Type != tt.wantType {
				t.Errorf("type = %s, want %s", err.Type, tt.wantType)
			}
			if err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", err.Code, tt.wantCode)
			}
			if err.Status != tt.status || err.Provider != "gemini" || err.Operation != "list_models" {
				t.Errorf("context missing: %+v", err)
			}
			if err.Message == "" {
				t.Error("expected status text as message")
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestMapNetworkError(t *testing.T) {
	if err := MapNetworkError("openai", "stream", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation should pass through, got %v", err)
	}

	err := MapNetworkError("openai", "stream", context.DeadlineExceeded)
	if !IsType(err, ErrorTypeTransport) {
		t.Fatalf("deadline should map to transport error, got %v", err)
	}
	apiErr, _ := AsAPIError(err)
	if apiErr.Code != "timeout" {
		t.Errorf("code = %q, want timeout", apiErr.Code)
	}

	err = MapNetworkError("openai", "stream", timeoutErr{})
	if apiErr, _ := AsAPIError(err); apiErr == nil || apiErr.Code != "timeout" {
		t.Errorf("net timeout should map to timeout code, got %v", err)
	}

	err = MapNetworkError("openai", "stream", errors.New("connection refused"))
	if !IsType(err, ErrorTypeTransport) {
		t.Errorf("connection failure should be transport error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", NewTransportError("openai", "list_models", 503, "down"), true},
		{"wrapped transport", fmt.Errorf("call: %w", NewTransportError("openai", "x", 0, "down")), true},
		{"upstream rate limit", MapHTTPStatus("openai", "x", 429, ""), true},
		{"gateway rate limit", NewTooManyRequestsError("slow down"), false},
		{"validation", NewInvalidRequestError("id", "required"), false},
		{"unsupported", NewUnsupportedError("ollama", "list_files"), false},
		{"rejected", NewRejectedError("openai", "get_model", 404, "no such model"), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorResponseJSON(t *testing.T) {
	resp := ErrorResponse{Error: NewUnsupportedError("ollama", "list_voices")}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	e := decoded["error"]
	if e["type"] != "unsupported_capability" {
		t.Errorf("type = %v", e["type"])
	}
	if e["provider"] != "ollama" || e["operation"] != "list_voices" {
		t.Errorf("context fields missing: %v", e)
	}
	if _, ok := e["status"]; ok {
		t.Error("zero status should be omitted")
	}
}
