package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/unigen/pkg/api"
)

// HTTPStatusFromError maps an APIError to the gateway's HTTP status.
// Provider rejections keep the provider's 4xx status.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeUnsupportedCapability:
		return http.StatusNotImplemented
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case api.ErrorTypeProviderRejected:
		if err.Status >= 400 && err.Status < 500 {
			return err.Status
		}
		return http.StatusBadRequest
	case api.ErrorTypeTransport:
		if err.Code == "timeout" {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case api.ErrorTypeApprovalTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AsAPIError converts any error into an APIError. Context cancellation
// becomes a server error with code "cancelled".
func AsAPIError(err error) *api.APIError {
	if apiErr, ok := api.AsAPIError(err); ok {
		return apiErr
	}
	if errors.Is(err, context.Canceled) {
		e := api.NewServerError("request cancelled")
		e.Code = "cancelled"
		return e
	}
	return api.NewServerError(err.Error())
}

// WriteErrorResponse writes apiErr as a JSON error body with status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError writes any error using AsAPIError.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, AsAPIError(err))
}
