package provider

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/query"
)

// StaleCursor reports whether err is a provider rejecting the cursor or
// page token of a continued listing. Such rejections surface as an empty
// page so defensive paging loops terminate instead of failing.
func StaleCursor(err error, n query.Normalized) bool {
	if err == nil || !n.Fields.HasCursor() {
		return false
	}
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeProviderRejected {
		return false
	}
	switch apiErr.Status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		slog.Debug("stale cursor, returning empty page",
			"provider", apiErr.Provider, "operation", apiErr.Operation, "status", apiErr.Status)
		return true
	}
	return false
}

// EmptyPage returns an empty page annotated with the normalization outcome.
func EmptyPage[T any](n query.Normalized) api.Page[T] {
	return query.Annotate(api.NewPage[T](nil, nil), n)
}
