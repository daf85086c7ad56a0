package openrouter

import (
	"context"
	"maps"
	"net/http"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/openaicompat"
)

// DefaultBaseURL is the public OpenRouter endpoint. Request paths add /v1.
const DefaultBaseURL = "https://openrouter.ai/api"

// Provider implements provider.Provider for OpenRouter. It delegates HTTP
// communication to the shared openaicompat.Client; model names are mapped
// through Config.ModelMapping before they are sent.
type Provider struct {
	*openaicompat.Client
}

// Ensure Provider implements provider.Provider at compile time.
var (
	_ provider.Provider    = (*Provider)(nil)
	_ provider.ModelGetter = (*Provider)(nil)
)

// New creates a new OpenRouter provider with the given configuration.
func New(cfg provider.Config) (*Provider, error) {
	cfg = cfg.WithDefaults("openrouter", DefaultBaseURL)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Headers = maps.Clone(cfg.Headers)
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if _, ok := cfg.Headers["X-Title"]; !ok {
		cfg.Headers["X-Title"] = "unigen"
	}

	caps := provider.Capabilities{
		Operations: []provider.Operation{
			provider.OpGetModel, provider.OpListModels,
			provider.OpGenerate, provider.OpStream,
		},
		Streaming:   true,
		ToolCalling: true,
	}
	return &Provider{Client: openaicompat.NewClient(cfg, caps)}, nil
}

// GetModel resolves a model from the catalog. OpenRouter has no single
// model endpoint.
func (p *Provider) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	models, err := p.FetchModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if models[i].ID == id {
			return &models[i], nil
		}
	}
	return nil, api.MapHTTPStatus(p.Name(), string(provider.OpGetModel), http.StatusNotFound, "model "+id+" not found")
}
