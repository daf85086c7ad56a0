// Package anthropic implements the provider for the Anthropic Messages API:
// the cursor-paged model catalog, message generation and SSE streaming
// with text and tool_use content blocks.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
	"github.com/rhuss/unigen/pkg/query"
)

const (
	// DefaultBaseURL is the public Anthropic endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	// defaultMaxTokens is used when the request leaves max_tokens unset;
	// the Messages API requires it.
	defaultMaxTokens = 1024
)

// Provider is the Anthropic adapter.
type Provider struct {
	cfg  provider.Config
	http *httpclient.Client
}

var (
	_ provider.Provider    = (*Provider)(nil)
	_ provider.ModelGetter = (*Provider)(nil)
	_ provider.ModelLister = (*Provider)(nil)
	_ provider.Generator   = (*Provider)(nil)
	_ provider.Streamer    = (*Provider)(nil)
)

// New creates an Anthropic provider. The API key is required.
func New(cfg provider.Config) (*Provider, error) {
	cfg = cfg.WithDefaults("anthropic", DefaultBaseURL)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	headers := map[string]string{"anthropic-version": APIVersion}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Provider{
		cfg: cfg,
		http: httpclient.New(httpclient.Options{
			Provider:  cfg.Name,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Headers:   headers,
			Authorize: httpclient.HeaderAuth("x-api-key", "", cfg.APIKey),
		}),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.cfg.Name }

// Capabilities returns the declared capability set.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Operations: []provider.Operation{
			provider.OpGetModel, provider.OpListModels,
			provider.OpGenerate, provider.OpStream,
		},
		Streaming:   true,
		ToolCalling: true,
	}
}

// Profile returns the model catalog pagination: element cursors named
// after_id and before_id, no order parameter.
func (p *Provider) Profile(resource provider.Resource) query.Profile {
	return query.Profile{
		Provider:     p.cfg.Name,
		Resource:     string(resource),
		Scheme:       query.SchemeCursor,
		MinLimit:     1,
		MaxLimit:     1000,
		DefaultLimit: 20,
		Params: map[query.Field]string{
			query.FieldLimit:  "limit",
			query.FieldAfter:  "after_id",
			query.FieldBefore: "before_id",
		},
	}
}

// Close releases client resources.
func (p *Provider) Close() error { return p.http.Close() }

// ListModels pages GET /v1/models.
func (p *Provider) ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error) {
	n, err := query.Normalize(p.Profile(provider.ResourceModels), q)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	var resp modelList
	err = p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListModels),
		Method:    http.MethodGet,
		Path:      "/v1/models",
		Params:    n.Params,
	}, &resp)
	if provider.StaleCursor(err, n) {
		return provider.EmptyPage[api.ModelData](n), nil
	}
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}

	models := make([]api.ModelData, 0, len(resp.Data))
	for _, r := range resp.Data {
		models = append(models, p.toModel(r))
	}
	page := api.NewPage(models, api.ModelID)
	page.HasMore = resp.HasMore
	return query.Annotate(page, n), nil
}

// GetModel fetches GET /v1/models/{id}.
func (p *Provider) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	var r httpclient.Record
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGetModel),
		Method:    http.MethodGet,
		Path:      "/v1/models/" + url.PathEscape(id),
	}, &r)
	if err != nil {
		return nil, err
	}
	m := p.toModel(r)
	return &m, nil
}

// Generate sends a non-streaming message request.
func (p *Provider) Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error) {
	var resp messagesResponse
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGenerate),
		Method:    http.MethodPost,
		Path:      "/v1/messages",
		Body:      p.translate(req, false),
	}, &resp)
	if err != nil {
		return nil, err
	}

	res := &api.GenerateResult{
		ID:           resp.ID,
		Provider:     p.cfg.Name,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Usage: &api.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			res.Text += b.Text
		case "tool_use":
			args := string(b.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			res.ToolCalls = append(res.ToolCalls, api.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return res, nil
}

// Stream sends a streaming message request.
func (p *Provider) Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	resp, err := p.http.Open(ctx, httpclient.Request{
		Operation: string(provider.OpStream),
		Method:    http.MethodPost,
		Path:      "/v1/messages",
		Body:      p.translate(req, true),
		Accept:    "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	return httpclient.Pump(ctx, p.cfg.Name, string(provider.OpStream), resp, parseStream(p.cfg.Name)), nil
}

// translate builds the Messages API body. System turns are lifted into
// the top-level system field and tool results become user turns with a
// tool_result block.
func (p *Provider) translate(req *api.GenerateRequest, stream bool) messagesRequest {
	mr := messagesRequest{
		Model:         p.cfg.MapModel(req.Model),
		MaxTokens:     defaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        stream,
	}
	if req.MaxTokens != nil {
		mr.MaxTokens = *req.MaxTokens
	}
	if md, ok := req.Options["metadata"].(map[string]any); ok {
		mr.Metadata = md
	}

	for _, m := range req.Conversation() {
		switch m.Role {
		case api.RoleSystem:
			if mr.System != "" {
				mr.System += "\n\n"
			}
			mr.System += m.Content
		case api.RoleTool:
			mr.Messages = append(mr.Messages, message{
				Role: api.RoleUser,
				Content: []contentBlock{{
					Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content,
				}},
			})
		default:
			msg := message{Role: m.Role}
			if m.Content != "" {
				msg.Content = append(msg.Content, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				msg.Content = append(msg.Content, contentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: json.RawMessage(httpclient.RepairArguments(tc.Arguments)),
				})
			}
			mr.Messages = append(mr.Messages, msg)
		}
	}

	for _, t := range req.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		mr.Tools = append(mr.Tools, tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return mr
}

func (p *Provider) toModel(r httpclient.Record) api.ModelData {
	return api.ModelData{
		ID:        r.String("id"),
		Provider:  p.cfg.Name,
		Name:      r.String("display_name"),
		OwnedBy:   "anthropic",
		CreatedAt: r.Time("created_at"),
		Metadata:  r.Metadata("id", "type", "display_name", "created_at"),
	}
}
