// Package http serves the orchestration engine over HTTP with JSON and
// server-sent events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/approval"
	"github.com/rhuss/unigen/pkg/auth"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
	"github.com/rhuss/unigen/pkg/query"
	"github.com/rhuss/unigen/pkg/transport"
)

// Backend groups what the adapter serves. Only Generator is required;
// routes whose backend is nil answer 501.
type Backend struct {
	Generator transport.Generator
	Catalog   transport.Catalog
	Approvals transport.Approvals
	Tasks     transport.Tasks
}

// Config holds adapter limits.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns a 10 MB body limit.
func DefaultConfig() Config {
	return Config{MaxBodySize: 10 << 20}
}

// Adapter routes gateway requests to a Backend.
type Adapter struct {
	backend Backend
	gen     transport.Generator
	mux     *http.ServeMux
	cfg     Config
}

// NewAdapter creates an adapter. Middleware wraps the Generator in order.
func NewAdapter(b Backend, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	gen := b.Generator
	if len(middlewares) > 0 {
		gen = transport.Chain(middlewares...)(gen)
	}
	a := &Adapter{backend: b, gen: gen, mux: http.NewServeMux(), cfg: cfg}

	a.mux.HandleFunc("GET /v1/providers", a.handleListProviders)
	a.mux.HandleFunc("GET /v1/providers/{provider}", a.handleGetProvider)
	a.mux.Handle("DELETE /v1/providers/{provider}/cache", auth.RequireScope(auth.ScopeCatalogWrite, http.HandlerFunc(a.handleInvalidate)))
	a.mux.HandleFunc("POST /v1/providers/{provider}/generate", a.handleGenerate)

	a.catalogRoutes("models",
		listHandler(a, func(c transport.Catalog) lister[api.ModelData] { return c.ListModels }),
		getHandler(a, func(c transport.Catalog) getter[api.ModelData] { return c.GetModel }),
		deleteHandler(a, func(c transport.Catalog) deleter { return c.DeleteModel }))
	a.catalogRoutes("voices",
		listHandler(a, func(c transport.Catalog) lister[api.VoiceData] { return c.ListVoices }),
		getHandler(a, func(c transport.Catalog) getter[api.VoiceData] { return c.GetVoice }),
		deleteHandler(a, func(c transport.Catalog) deleter { return c.DeleteVoice }))
	a.catalogRoutes("files",
		listHandler(a, func(c transport.Catalog) lister[api.UploadedFile] { return c.ListFiles }),
		getHandler(a, func(c transport.Catalog) getter[api.UploadedFile] { return c.GetFile }),
		deleteHandler(a, func(c transport.Catalog) deleter { return c.DeleteFile }))

	a.mux.HandleFunc("GET /v1/tasks", a.handleListTasks)
	a.mux.HandleFunc("DELETE /v1/tasks/{id}", a.handleCancelTask)

	a.mux.HandleFunc("GET /v1/approvals", a.handleListApprovals)
	a.mux.HandleFunc("GET /v1/approvals/{id}", a.handleGetApproval)
	a.mux.Handle("POST /v1/approvals/{id}", auth.RequireScope(auth.ScopeApprove, http.HandlerFunc(a.handleRespond)))

	return a
}

// Handler returns the routed handler with request id propagation and
// request metrics.
func (a *Adapter) Handler() http.Handler {
	return requestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

func (a *Adapter) catalogRoutes(resource string, list, get, del http.HandlerFunc) {
	base := "/v1/providers/{provider}/" + resource
	a.mux.HandleFunc("GET "+base, list)
	// Ids may contain slashes, as in "models/gemini-1.5-pro".
	a.mux.HandleFunc("GET "+base+"/{id...}", get)
	a.mux.Handle("DELETE "+base+"/{id...}", auth.RequireScope(auth.ScopeCatalogWrite, del))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type listBody[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func list[T any](data []T) listBody[T] {
	if data == nil {
		data = []T{}
	}
	return listBody[T]{Object: "list", Data: data}
}

func notConfigured(w http.ResponseWriter, what string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available on this gateway"),
		http.StatusNotImplemented)
}

func (a *Adapter) handleListProviders(w http.ResponseWriter, r *http.Request) {
	if a.backend.Catalog == nil {
		notConfigured(w, "provider catalog")
		return
	}
	writeJSON(w, http.StatusOK, list(a.backend.Catalog.Providers()))
}

func (a *Adapter) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	if a.backend.Catalog == nil {
		notConfigured(w, "provider catalog")
		return
	}
	info, err := a.backend.Catalog.Provider(r.PathValue("provider"))
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *Adapter) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if a.backend.Catalog == nil {
		notConfigured(w, "provider catalog")
		return
	}
	name := r.PathValue("provider")
	if _, err := a.backend.Catalog.Provider(name); err != nil {
		transport.WriteError(w, err)
		return
	}
	n := a.backend.Catalog.InvalidateProvider(r.Context(), name)
	writeJSON(w, http.StatusOK, map[string]any{"provider": name, "invalidated": n})
}

type (
	lister[T any] func(ctx context.Context, providerName string, q query.Query) (api.Page[T], error)
	getter[T any] func(ctx context.Context, providerName, id string) (*T, error)
	deleter       func(ctx context.Context, providerName, id string) error
)

func listHandler[T any](a *Adapter, pick func(transport.Catalog) lister[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.backend.Catalog == nil {
			notConfigured(w, "provider catalog")
			return
		}
		q, apiErr := parseListQuery(r.URL.Query())
		if apiErr != nil {
			transport.WriteAPIError(w, apiErr)
			return
		}
		page, err := pick(a.backend.Catalog)(r.Context(), r.PathValue("provider"), q)
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func getHandler[T any](a *Adapter, pick func(transport.Catalog) getter[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.backend.Catalog == nil {
			notConfigured(w, "provider catalog")
			return
		}
		item, err := pick(a.backend.Catalog)(r.Context(), r.PathValue("provider"), r.PathValue("id"))
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func deleteHandler(a *Adapter, pick func(transport.Catalog) deleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.backend.Catalog == nil {
			notConfigured(w, "provider catalog")
			return
		}
		if err := pick(a.backend.Catalog)(r.Context(), r.PathValue("provider"), r.PathValue("id")); err != nil {
			transport.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGenerate serves POST /v1/providers/{provider}/generate. Streaming
// calls get a task id in the X-Task-ID header, usable with
// DELETE /v1/tasks/{id}.
func (a *Adapter) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodySize)
	var req api.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.cfg.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}

	call := &transport.GenerateCall{Provider: r.PathValue("provider"), Request: &req}
	if req.Stream {
		call.TaskID = r.Header.Get("X-Task-ID")
		if call.TaskID == "" || !api.ValidateTaskID(call.TaskID) {
			call.TaskID = api.NewTaskID()
		}
		w.Header().Set("X-Task-ID", call.TaskID)
		observability.StreamingConnections.Inc()
		defer observability.StreamingConnections.Dec()
	}

	rw := newSSEResponseWriter(w)
	if err := a.gen.Generate(r.Context(), call, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// writeHandlerError reports err as a terminal error event once streaming
// has started, and as a JSON error body otherwise.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	apiErr := transport.AsAPIError(err)
	switch {
	case rw.streaming():
		_ = rw.WriteEvent(context.Background(), api.ErrorEvent(apiErr))
	case rw.completed():
		debug.Log("http", "error after completed response", "error", err)
	default:
		transport.WriteAPIError(w, apiErr)
	}
}

func (a *Adapter) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if a.backend.Tasks == nil {
		notConfigured(w, "task control")
		return
	}
	writeJSON(w, http.StatusOK, list(a.backend.Tasks.RunningTasks()))
}

func (a *Adapter) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if a.backend.Tasks == nil {
		notConfigured(w, "task control")
		return
	}
	id := r.PathValue("id")
	if !api.ValidateTaskID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed task id"))
		return
	}
	if !a.backend.Tasks.CancelTask(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("task "+id+" is not running"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if a.backend.Approvals == nil {
		notConfigured(w, "approval gate")
		return
	}
	writeJSON(w, http.StatusOK, list(a.backend.Approvals.Pending()))
}

func (a *Adapter) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	if a.backend.Approvals == nil {
		notConfigured(w, "approval gate")
		return
	}
	id := r.PathValue("id")
	ap, ok := a.backend.Approvals.Get(id)
	if !ok {
		transport.WriteAPIError(w, api.NewNotFoundError("approval "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, ap)
}

type respondBody struct {
	Action string `json:"action"`
}

func (a *Adapter) handleRespond(w http.ResponseWriter, r *http.Request) {
	if a.backend.Approvals == nil {
		notConfigured(w, "approval gate")
		return
	}
	var body respondBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	action, err := approval.ParseAction(body.Action)
	if err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("action", err.Error()))
		return
	}

	id := r.PathValue("id")
	if err := a.backend.Approvals.Respond(id, action); err != nil {
		transport.WriteError(w, err)
		return
	}
	subject := ""
	if ident := auth.IdentityFromContext(r.Context()); ident != nil {
		subject = ident.Subject
	}
	debug.Log("approval", "answered over http", "approval_id", id, "action", action, "subject", subject)

	ap, _ := a.backend.Approvals.Get(id)
	writeJSON(w, http.StatusOK, ap)
}
