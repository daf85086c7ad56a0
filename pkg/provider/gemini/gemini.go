// Package gemini implements the provider for the Google Gemini API
// (generativelanguage v1beta): the token-paged model catalog,
// generateContent and streamGenerateContent over SSE.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
	"github.com/rhuss/unigen/pkg/query"
)

// DefaultBaseURL is the public Gemini endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Provider is the Gemini adapter.
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

// New creates a Gemini provider. The API key is required.
func New(cfg provider.Config) (*Provider, error) {
	cfg = cfg.WithDefaults("gemini", DefaultBaseURL)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	return &Provider{
		cfg: cfg,
		http: httpclient.New(httpclient.Options{
			Provider:  cfg.Name,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Headers:   cfg.Headers,
			Authorize: httpclient.HeaderAuth("x-goog-api-key", "", cfg.APIKey),
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

// Profile returns the model catalog pagination: an opaque page token.
// Element cursors are not understood and are dropped.
func (p *Provider) Profile(resource provider.Resource) query.Profile {
	return query.Profile{
		Provider:     p.cfg.Name,
		Resource:     string(resource),
		Scheme:       query.SchemeToken,
		MinLimit:     1,
		MaxLimit:     1000,
		DefaultLimit: 50,
		Params: map[query.Field]string{
			query.FieldLimit:     "pageSize",
			query.FieldPageToken: "pageToken",
		},
	}
}

// Close releases client resources.
func (p *Provider) Close() error { return p.http.Close() }

// ListModels pages GET /v1beta/models.
func (p *Provider) ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error) {
	n, err := query.Normalize(p.Profile(provider.ResourceModels), q)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	var resp modelList
	err = p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListModels),
		Method:    http.MethodGet,
		Path:      "/v1beta/models",
		Params:    n.Params,
	}, &resp)
	if provider.StaleCursor(err, n) {
		return provider.EmptyPage[api.ModelData](n), nil
	}
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}

	models := make([]api.ModelData, 0, len(resp.Models))
	for _, r := range resp.Models {
		models = append(models, p.toModel(r))
	}
	page := api.NewPage(models, api.ModelID)
	page.NextPageToken = resp.NextPageToken
	page.HasMore = resp.NextPageToken != ""
	return query.Annotate(page, n), nil
}

// GetModel fetches GET /v1beta/models/{id}.
func (p *Provider) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	var r httpclient.Record
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGetModel),
		Method:    http.MethodGet,
		Path:      "/v1beta/" + modelPath(id),
	}, &r)
	if err != nil {
		return nil, err
	}
	m := p.toModel(r)
	return &m, nil
}

// Generate calls models/{model}:generateContent.
func (p *Provider) Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error) {
	var resp generateResponse
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGenerate),
		Method:    http.MethodPost,
		Path:      "/v1beta/" + modelPath(p.cfg.MapModel(req.Model)) + ":generateContent",
		Body:      translate(req),
	}, &resp)
	if err != nil {
		return nil, err
	}

	res := &api.GenerateResult{
		ID:       resp.ResponseID,
		Provider: p.cfg.Name,
		Model:    resp.ModelVersion,
	}
	if u := resp.UsageMetadata; u != nil {
		res.Usage = &api.Usage{
			InputTokens:  u.PromptTokenCount,
			OutputTokens: u.CandidatesTokenCount,
			TotalTokens:  u.TotalTokenCount,
		}
	}
	if len(resp.Candidates) == 0 {
		res.FinishReason = "empty"
		return res, nil
	}
	c := resp.Candidates[0]
	res.FinishReason = c.FinishReason
	for _, pt := range c.Content.Parts {
		res.Text += pt.Text
		if tc, ok := toolCall(pt); ok {
			res.ToolCalls = append(res.ToolCalls, tc)
		}
	}
	return res, nil
}

// Stream calls models/{model}:streamGenerateContent?alt=sse.
func (p *Provider) Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	resp, err := p.http.Open(ctx, httpclient.Request{
		Operation: string(provider.OpStream),
		Method:    http.MethodPost,
		Path:      "/v1beta/" + modelPath(p.cfg.MapModel(req.Model)) + ":streamGenerateContent",
		Params:    url.Values{"alt": {"sse"}},
		Body:      translate(req),
		Accept:    "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	return httpclient.Pump(ctx, p.cfg.Name, string(provider.OpStream), resp, parseStream(p.cfg.Name)), nil
}

// parseStream emits text deltas per part. Gemini sends function calls
// whole, so each yields a started and a completed event back to back.
func parseStream(providerName string) httpclient.ParseFunc {
	return func(ctx context.Context, body io.Reader, em *httpclient.Emitter) error {
		return httpclient.ReadSSE(ctx, body, func(ev httpclient.SSEEvent) error {
			var chunk generateResponse
			if !httpclient.DecodeChunk(providerName, []byte(ev.Data), &chunk) {
				return nil
			}
			if len(chunk.Candidates) == 0 {
				return nil
			}
			for _, pt := range chunk.Candidates[0].Content.Parts {
				var out []api.StreamEvent
				if pt.Text != "" {
					out = append(out, api.TextDeltaEvent(pt.Text))
				}
				if tc, ok := toolCall(pt); ok {
					out = append(out,
						api.ToolCallStartedEvent(api.ToolCall{ID: tc.ID, Name: tc.Name}),
						api.ToolCallCompletedEvent(tc))
				}
				for _, e := range out {
					if !em.Emit(e) {
						return ctx.Err()
					}
				}
			}
			return nil
		})
	}
}

func toolCall(pt part) (api.ToolCall, bool) {
	if pt.FunctionCall == nil {
		return api.ToolCall{}, false
	}
	args := string(pt.FunctionCall.Args)
	if args == "" || args == "null" {
		args = "{}"
	}
	return api.ToolCall{ID: api.NewCallID(), Name: pt.FunctionCall.Name, Arguments: args}, true
}

// translate builds a generateContent body. Gemini names the assistant
// role "model" and identifies function responses by function name, so
// tool results are matched to the name of the call they answer.
func translate(req *api.GenerateRequest) generateRequest {
	gr := generateRequest{}
	names := make(map[string]string)

	for _, m := range req.Conversation() {
		switch m.Role {
		case api.RoleSystem:
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &content{}
			}
			gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, part{Text: m.Content})
		case api.RoleAssistant:
			c := content{Role: "model"}
			if m.Content != "" {
				c.Parts = append(c.Parts, part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Name
				c.Parts = append(c.Parts, part{FunctionCall: &functionCall{
					Name: tc.Name,
					Args: json.RawMessage(httpclient.RepairArguments(tc.Arguments)),
				}})
			}
			gr.Contents = append(gr.Contents, c)
		case api.RoleTool:
			name := names[m.ToolCallID]
			if name == "" {
				name = m.ToolCallID
			}
			gr.Contents = append(gr.Contents, content{Role: "user", Parts: []part{{
				FunctionResponse: &functionResponse{Name: name, Response: toolResponse(m.Content)},
			}}})
		default:
			gr.Contents = append(gr.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	if len(req.Tools) > 0 {
		ts := toolSet{}
		for _, t := range req.Tools {
			ts.FunctionDeclarations = append(ts.FunctionDeclarations, functionDeclaration{
				Name: t.Name, Description: t.Description, Parameters: t.Parameters,
			})
		}
		gr.Tools = []toolSet{ts}
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || len(req.Stop) > 0 {
		gr.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}
	return gr
}

// toolResponse wraps a tool result as the object Gemini expects.
func toolResponse(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj
	}
	return map[string]any{"result": s}
}

// modelPath returns "models/{id}", accepting ids with or without the prefix.
func modelPath(id string) string {
	return "models/" + url.PathEscape(strings.TrimPrefix(id, "models/"))
}

func (p *Provider) toModel(r httpclient.Record) api.ModelData {
	return api.ModelData{
		ID:          strings.TrimPrefix(r.String("name"), "models/"),
		Provider:    p.cfg.Name,
		Name:        r.String("displayName"),
		Description: r.String("description"),
		OwnedBy:     "google",
		Metadata:    r.Metadata("name", "displayName", "description"),
	}
}
