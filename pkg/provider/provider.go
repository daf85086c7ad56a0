package provider

import (
	"context"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/query"
)

// Resource names a catalog a provider may expose.
type Resource string

const (
	ResourceModels Resource = "models"
	ResourceVoices Resource = "voices"
	ResourceFiles  Resource = "files"
)

// Provider is a third-party AI service behind a uniform surface. Each
// operation is an optional interface below; a provider offers an
// operation when it both declares it in Capabilities and implements the
// matching interface.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "elevenlabs").
	Name() string

	// Capabilities returns the operations and features the provider offers.
	Capabilities() Capabilities

	// Profile describes the pagination scheme of a catalog endpoint.
	Profile(resource Resource) query.Profile

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// ModelGetter fetches a single model record.
type ModelGetter interface {
	GetModel(ctx context.Context, id string) (*api.ModelData, error)
}

// ModelLister lists the model catalog one page at a time.
type ModelLister interface {
	ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error)
}

// ModelDeleter removes a model, typically a fine-tune or a local pull.
type ModelDeleter interface {
	DeleteModel(ctx context.Context, id string) error
}

// VoiceGetter fetches a single voice record.
type VoiceGetter interface {
	GetVoice(ctx context.Context, id string) (*api.VoiceData, error)
}

// VoiceLister lists the voice catalog one page at a time.
type VoiceLister interface {
	ListVoices(ctx context.Context, q query.Query) (api.Page[api.VoiceData], error)
}

// VoiceDeleter removes a voice.
type VoiceDeleter interface {
	DeleteVoice(ctx context.Context, id string) error
}

// FileGetter fetches a single uploaded file record.
type FileGetter interface {
	GetFile(ctx context.Context, id string) (*api.UploadedFile, error)
}

// FileLister lists uploaded files one page at a time.
type FileLister interface {
	ListFiles(ctx context.Context, q query.Query) (api.Page[api.UploadedFile], error)
}

// FileDeleter removes an uploaded file.
type FileDeleter interface {
	DeleteFile(ctx context.Context, id string) error
}

// Generator performs a non-streamed generation.
type Generator interface {
	Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error)
}

// Streamer performs a streamed generation. The returned channel carries
// events in the order the transport produced them and is closed when the
// stream ends. Cancelling ctx abandons the underlying request; no events
// are sent after cancellation is observed.
type Streamer interface {
	Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error)
}

// Supports reports whether p offers op: it must be declared in the
// capability set and implemented.
func Supports(p Provider, op Operation) bool {
	if !p.Capabilities().Declares(op) {
		return false
	}
	var ok bool
	switch op {
	case OpGetModel:
		_, ok = p.(ModelGetter)
	case OpListModels:
		_, ok = p.(ModelLister)
	case OpDeleteModel:
		_, ok = p.(ModelDeleter)
	case OpGetVoice:
		_, ok = p.(VoiceGetter)
	case OpListVoices:
		_, ok = p.(VoiceLister)
	case OpDeleteVoice:
		_, ok = p.(VoiceDeleter)
	case OpGetFile:
		_, ok = p.(FileGetter)
	case OpListFiles:
		_, ok = p.(FileLister)
	case OpDeleteFile:
		_, ok = p.(FileDeleter)
	case OpGenerate:
		_, ok = p.(Generator)
	case OpStream:
		_, ok = p.(Streamer)
	}
	return ok
}

// Info summarizes a provider for discovery endpoints.
type Info struct {
	Name        string      `json:"name"`
	Operations  []Operation `json:"operations"`
	Streaming   bool        `json:"streaming"`
	ToolCalling bool        `json:"tool_calling"`
	Audio       bool        `json:"audio"`
}

// Describe returns the operations p actually supports.
func Describe(p Provider) Info {
	caps := p.Capabilities()
	info := Info{
		Name:        p.Name(),
		Operations:  []Operation{},
		Streaming:   caps.Streaming,
		ToolCalling: caps.ToolCalling,
		Audio:       caps.Audio,
	}
	for _, op := range AllOperations {
		if Supports(p, op) {
			info.Operations = append(info.Operations, op)
		}
	}
	return info
}
