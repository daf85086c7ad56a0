package task

import (
	"context"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/engine"
	"github.com/rhuss/unigen/pkg/query"
	"github.com/rhuss/unigen/pkg/stream"
)

// Runner executes the operations builders describe. *engine.Engine
// implements it.
type Runner interface {
	GetModel(ctx context.Context, provider, id string) (*api.ModelData, error)
	ListModels(ctx context.Context, provider string, q query.Query) (api.Page[api.ModelData], error)
	DeleteModel(ctx context.Context, provider, id string) error

	GetVoice(ctx context.Context, provider, id string) (*api.VoiceData, error)
	ListVoices(ctx context.Context, provider string, q query.Query) (api.Page[api.VoiceData], error)
	DeleteVoice(ctx context.Context, provider, id string) error

	GetFile(ctx context.Context, provider, id string) (*api.UploadedFile, error)
	ListFiles(ctx context.Context, provider string, q query.Query) (api.Page[api.UploadedFile], error)
	DeleteFile(ctx context.Context, provider, id string) error

	Generate(ctx context.Context, provider string, req *api.GenerateRequest) (*api.GenerateResult, error)
	RunTask(ctx context.Context, t engine.Task, listeners ...stream.Listener) (*api.GenerateResult, stream.Summary, error)
}

var _ Runner = (*engine.Engine)(nil)
