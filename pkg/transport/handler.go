package transport

import (
	"context"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/approval"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/query"
)

// GenerateCall is one generation request received by the gateway.
type GenerateCall struct {
	// TaskID identifies a streaming call for cancellation. The HTTP
	// adapter assigns it before the call is dispatched.
	TaskID   string
	Provider string
	Request  *api.GenerateRequest
}

// Generator handles generation calls. Streaming calls
// (Request.Stream) write events, others write one result.
type Generator interface {
	Generate(ctx context.Context, call *GenerateCall, w ResponseWriter) error
}

// GeneratorFunc adapts an ordinary function to Generator.
type GeneratorFunc func(ctx context.Context, call *GenerateCall, w ResponseWriter) error

// Generate calls f(ctx, call, w).
func (f GeneratorFunc) Generate(ctx context.Context, call *GenerateCall, w ResponseWriter) error {
	return f(ctx, call, w)
}

// ResponseWriter abstracts streaming and non-streaming output.
//
// WriteEvent and WriteResult are mutually exclusive on one writer. Writing
// after a terminal event returns an error.
type ResponseWriter interface {
	WriteEvent(ctx context.Context, ev api.StreamEvent) error
	WriteResult(ctx context.Context, res *api.GenerateResult) error
	Flush() error
}

// Catalog serves provider metadata and the list, get and delete
// operations on models, voices and files.
type Catalog interface {
	Providers() []provider.Info
	Provider(name string) (provider.Info, error)
	InvalidateProvider(ctx context.Context, name string) int

	ListModels(ctx context.Context, providerName string, q query.Query) (api.Page[api.ModelData], error)
	GetModel(ctx context.Context, providerName, id string) (*api.ModelData, error)
	DeleteModel(ctx context.Context, providerName, id string) error

	ListVoices(ctx context.Context, providerName string, q query.Query) (api.Page[api.VoiceData], error)
	GetVoice(ctx context.Context, providerName, id string) (*api.VoiceData, error)
	DeleteVoice(ctx context.Context, providerName, id string) error

	ListFiles(ctx context.Context, providerName string, q query.Query) (api.Page[api.UploadedFile], error)
	GetFile(ctx context.Context, providerName, id string) (*api.UploadedFile, error)
	DeleteFile(ctx context.Context, providerName, id string) error
}

// Approvals exposes the approval gate to remote responders.
type Approvals interface {
	Pending() []approval.Approval
	Get(id string) (approval.Approval, bool)
	Respond(id string, action approval.Action) error
}

// Tasks controls in-flight streaming calls.
type Tasks interface {
	CancelTask(id string) bool
	RunningTasks() []string
}
