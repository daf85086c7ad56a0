// Package ollama implements the provider for a local Ollama server: the
// pulled model list, model inspection and deletion, and chat generation
// streamed as newline-delimited JSON.
package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
	"github.com/rhuss/unigen/pkg/query"
)

// DefaultBaseURL is where a local Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

// Provider is the Ollama adapter.
type Provider struct {
	cfg  provider.Config
	http *httpclient.Client
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ModelGetter  = (*Provider)(nil)
	_ provider.ModelLister  = (*Provider)(nil)
	_ provider.ModelDeleter = (*Provider)(nil)
	_ provider.Generator    = (*Provider)(nil)
	_ provider.Streamer     = (*Provider)(nil)
)

// New creates an Ollama provider. An API key is optional and sent as a
// bearer token for servers behind an authenticating proxy.
func New(cfg provider.Config) (*Provider, error) {
	cfg = cfg.WithDefaults("ollama", DefaultBaseURL)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		cfg: cfg,
		http: httpclient.New(httpclient.Options{
			Provider:  cfg.Name,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Headers:   cfg.Headers,
			Authorize: httpclient.BearerAuth(cfg.APIKey),
		}),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.cfg.Name }

// Capabilities returns the declared capability set.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Operations: []provider.Operation{
			provider.OpGetModel, provider.OpListModels, provider.OpDeleteModel,
			provider.OpGenerate, provider.OpStream,
		},
		Streaming:   true,
		ToolCalling: true,
	}
}

// Profile returns local paging: /api/tags has no paging parameters.
func (p *Provider) Profile(resource provider.Resource) query.Profile {
	return query.LocalProfile(p.cfg.Name, string(resource))
}

// Close releases client resources.
func (p *Provider) Close() error { return p.http.Close() }

// ListModels pages the pulled models locally, newest first by
// modification time.
func (p *Provider) ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error) {
	n, err := query.Normalize(p.Profile(provider.ResourceModels), q)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	var resp tagsResponse
	err = p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListModels),
		Method:    http.MethodGet,
		Path:      "/api/tags",
	}, &resp)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	models := make([]api.ModelData, 0, len(resp.Models))
	for _, r := range resp.Models {
		models = append(models, api.ModelData{
			ID:        r.String("name"),
			Provider:  p.cfg.Name,
			Name:      r.String("model"),
			OwnedBy:   "library",
			CreatedAt: r.Time("modified_at"),
			Metadata:  r.Metadata("name", "model", "modified_at"),
		})
	}
	return query.Paginate(models, api.ModelID, func(m api.ModelData) int64 { return m.CreatedAt }, n), nil
}

// GetModel inspects a model with POST /api/show.
func (p *Provider) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	var r httpclient.Record
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGetModel),
		Method:    http.MethodPost,
		Path:      "/api/show",
		Body:      modelRef{Model: id},
	}, &r)
	if err != nil {
		return nil, err
	}
	return &api.ModelData{
		ID:        id,
		Provider:  p.cfg.Name,
		Name:      id,
		OwnedBy:   "library",
		CreatedAt: r.Time("modified_at"),
		Metadata:  r.Metadata("modified_at", "modelfile", "license"),
	}, nil
}

// DeleteModel removes a pulled model with DELETE /api/delete.
func (p *Provider) DeleteModel(ctx context.Context, id string) error {
	return p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpDeleteModel),
		Method:    http.MethodDelete,
		Path:      "/api/delete",
		Body:      modelRef{Model: id},
	}, nil)
}

// Generate calls /api/chat without streaming.
func (p *Provider) Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error) {
	var resp chatResponse
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGenerate),
		Method:    http.MethodPost,
		Path:      "/api/chat",
		Body:      p.translate(req, false),
	}, &resp)
	if err != nil {
		return nil, err
	}
	res := &api.GenerateResult{
		Provider:     p.cfg.Name,
		Model:        resp.Model,
		Text:         resp.Message.Content,
		FinishReason: resp.DoneReason,
		Usage: &api.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
			TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
		},
	}
	res.ToolCalls = toolCalls(resp.Message.ToolCalls)
	return res, nil
}

// Stream calls /api/chat and reads the NDJSON response.
func (p *Provider) Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	resp, err := p.http.Open(ctx, httpclient.Request{
		Operation: string(provider.OpStream),
		Method:    http.MethodPost,
		Path:      "/api/chat",
		Body:      p.translate(req, true),
		Accept:    "application/x-ndjson",
	})
	if err != nil {
		return nil, err
	}
	return httpclient.Pump(ctx, p.cfg.Name, string(provider.OpStream), resp, parseStream(p.cfg.Name)), nil
}

// parseStream emits a text delta per line. Ollama delivers tool calls
// complete in a single line.
func parseStream(providerName string) httpclient.ParseFunc {
	return func(ctx context.Context, body io.Reader, em *httpclient.Emitter) error {
		return httpclient.ReadNDJSON(ctx, body, func(line []byte) error {
			var chunk chatResponse
			if !httpclient.DecodeChunk(providerName, line, &chunk) {
				return nil
			}
			if chunk.Error != "" {
				return api.NewTransportError(providerName, string(provider.OpStream), 0, chunk.Error)
			}
			var out []api.StreamEvent
			if chunk.Message.Content != "" {
				out = append(out, api.TextDeltaEvent(chunk.Message.Content))
			}
			for _, tc := range toolCalls(chunk.Message.ToolCalls) {
				out = append(out,
					api.ToolCallStartedEvent(api.ToolCall{ID: tc.ID, Name: tc.Name}),
					api.ToolCallCompletedEvent(tc))
			}
			for _, e := range out {
				if !em.Emit(e) {
					return ctx.Err()
				}
			}
			return nil
		})
	}
}

func toolCalls(in []chatToolCall) []api.ToolCall {
	var out []api.ToolCall
	for _, tc := range in {
		args := strings.TrimSpace(string(tc.Function.Arguments))
		if args == "" || args == "null" {
			args = "{}"
		}
		out = append(out, api.ToolCall{ID: api.NewCallID(), Name: tc.Function.Name, Arguments: args})
	}
	return out
}

func (p *Provider) translate(req *api.GenerateRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:  p.cfg.MapModel(req.Model),
		Stream: stream,
	}
	opts := map[string]any{}
	for k, v := range req.Options {
		opts[k] = v
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}
	if len(opts) > 0 {
		cr.Options = opts
	}

	for _, m := range req.Conversation() {
		cm := chatMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{Function: chatFunction{
				Name:      tc.Name,
				Arguments: json.RawMessage(httpclient.RepairArguments(tc.Arguments)),
			}})
		}
		cr.Messages = append(cr.Messages, cm)
	}
	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, chatTool{Type: "function", Function: chatToolDef{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	return cr
}
