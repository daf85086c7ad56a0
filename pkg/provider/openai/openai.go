// Package openai implements the provider for the OpenAI platform API.
// It is the OpenAI-compatible client with every catalog operation
// declared: models (including fine-tune deletion), files and chat
// completions.
package openai

import (
	"errors"

	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/openaicompat"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Provider is the OpenAI adapter.
type Provider struct {
	*openaicompat.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates an OpenAI provider. The API key is required.
func New(cfg provider.Config) (*Provider, error) {
	cfg = cfg.WithDefaults("openai", DefaultBaseURL)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	return &Provider{Client: openaicompat.NewClient(cfg, capabilities())}, nil
}

func capabilities() provider.Capabilities {
	return provider.Capabilities{
		Operations: []provider.Operation{
			provider.OpGetModel, provider.OpListModels, provider.OpDeleteModel,
			provider.OpGetFile, provider.OpListFiles, provider.OpDeleteFile,
			provider.OpGenerate, provider.OpStream,
		},
		Streaming:   true,
		ToolCalling: true,
	}
}
