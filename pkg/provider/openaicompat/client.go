package openaicompat

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
	"github.com/rhuss/unigen/pkg/query"
)

// Client speaks the OpenAI REST dialect: /v1/models, /v1/files and
// /v1/chat/completions. Adapters embed it and narrow the declared
// capability set to what their backend offers.
type Client struct {
	cfg  provider.Config
	caps provider.Capabilities
	http *httpclient.Client
}

// Ensure Client implements the operation interfaces at compile time.
var (
	_ provider.Provider     = (*Client)(nil)
	_ provider.ModelLister  = (*Client)(nil)
	_ provider.ModelGetter  = (*Client)(nil)
	_ provider.ModelDeleter = (*Client)(nil)
	_ provider.FileLister   = (*Client)(nil)
	_ provider.FileGetter   = (*Client)(nil)
	_ provider.FileDeleter  = (*Client)(nil)
	_ provider.Generator    = (*Client)(nil)
	_ provider.Streamer     = (*Client)(nil)
)

// DefaultCapabilities is what a generic OpenAI-compatible backend (vLLM,
// LiteLLM, LocalAI) offers: the model catalog and chat completions.
func DefaultCapabilities() provider.Capabilities {
	return provider.Capabilities{
		Operations: []provider.Operation{
			provider.OpListModels, provider.OpGetModel,
			provider.OpGenerate, provider.OpStream,
		},
		Streaming:   true,
		ToolCalling: true,
	}
}

// NewClient creates a Client. cfg must carry a name and base URL.
func NewClient(cfg provider.Config, caps provider.Capabilities) *Client {
	return &Client{
		cfg:  cfg,
		caps: caps,
		http: httpclient.New(httpclient.Options{
			Provider:  cfg.Name,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Headers:   cfg.Headers,
			Authorize: httpclient.BearerAuth(cfg.APIKey),
		}),
	}
}

// New creates a generic OpenAI-compatible provider.
func New(cfg provider.Config) (*Client, error) {
	cfg = cfg.WithDefaults("openai-compatible", "")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewClient(cfg, DefaultCapabilities()), nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return c.cfg.Name }

// Capabilities returns the declared capability set.
func (c *Client) Capabilities() provider.Capabilities { return c.caps }

// HTTP exposes the underlying client to embedding adapters.
func (c *Client) HTTP() *httpclient.Client { return c.http }

// Profile describes the pagination of each catalog. The model catalog is
// returned whole and paged locally; files page server-side by cursor.
func (c *Client) Profile(resource provider.Resource) query.Profile {
	if resource == provider.ResourceFiles {
		return query.Profile{
			Provider:     c.cfg.Name,
			Resource:     string(resource),
			Scheme:       query.SchemeCursor,
			MinLimit:     1,
			MaxLimit:     10000,
			DefaultLimit: 100,
			DefaultOrder: query.OrderDesc,
			Params: map[query.Field]string{
				query.FieldLimit: "limit",
				query.FieldOrder: "order",
				query.FieldAfter: "after",
			},
			Flags: map[string]string{"purpose": "purpose"},
		}
	}
	return query.LocalProfile(c.cfg.Name, string(resource))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// FetchModels returns the whole model catalog.
func (c *Client) FetchModels(ctx context.Context) ([]api.ModelData, error) {
	var resp ListResponse
	err := c.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListModels),
		Method:    http.MethodGet,
		Path:      "/v1/models",
	}, &resp)
	if err != nil {
		return nil, err
	}
	models := make([]api.ModelData, 0, len(resp.Data))
	for _, r := range resp.Data {
		models = append(models, c.toModel(r))
	}
	return models, nil
}

// ListModels pages the model catalog locally.
func (c *Client) ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error) {
	n, err := query.Normalize(c.Profile(provider.ResourceModels), q)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	models, err := c.FetchModels(ctx)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	return query.Paginate(models, api.ModelID, func(m api.ModelData) int64 { return m.CreatedAt }, n), nil
}

// GetModel fetches /v1/models/{id}.
func (c *Client) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	var r httpclient.Record
	err := c.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGetModel),
		Method:    http.MethodGet,
		Path:      "/v1/models/" + url.PathEscape(id),
	}, &r)
	if err != nil {
		return nil, err
	}
	m := c.toModel(r)
	return &m, nil
}

// DeleteModel deletes a fine-tuned model.
func (c *Client) DeleteModel(ctx context.Context, id string) error {
	return c.delete(ctx, provider.OpDeleteModel, "/v1/models/"+url.PathEscape(id))
}

// ListFiles pages /v1/files with cursor parameters.
func (c *Client) ListFiles(ctx context.Context, q query.Query) (api.Page[api.UploadedFile], error) {
	n, err := query.Normalize(c.Profile(provider.ResourceFiles), q)
	if err != nil {
		return api.Page[api.UploadedFile]{}, err
	}
	var resp ListResponse
	err = c.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListFiles),
		Method:    http.MethodGet,
		Path:      "/v1/files",
		Params:    n.Params,
	}, &resp)
	if provider.StaleCursor(err, n) {
		return provider.EmptyPage[api.UploadedFile](n), nil
	}
	if err != nil {
		return api.Page[api.UploadedFile]{}, err
	}

	files := make([]api.UploadedFile, 0, len(resp.Data))
	for _, r := range resp.Data {
		files = append(files, c.toFile(r))
	}
	page := api.NewPage(files, api.FileID)
	page.HasMore = resp.HasMore
	return query.Annotate(page, n), nil
}

// GetFile fetches /v1/files/{id}.
func (c *Client) GetFile(ctx context.Context, id string) (*api.UploadedFile, error) {
	var r httpclient.Record
	err := c.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGetFile),
		Method:    http.MethodGet,
		Path:      "/v1/files/" + url.PathEscape(id),
	}, &r)
	if err != nil {
		return nil, err
	}
	f := c.toFile(r)
	return &f, nil
}

// DeleteFile deletes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.delete(ctx, provider.OpDeleteFile, "/v1/files/"+url.PathEscape(id))
}

// Generate performs a non-streaming chat completion.
func (c *Client) Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error) {
	var resp ChatCompletionResponse
	err := c.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGenerate),
		Method:    http.MethodPost,
		Path:      "/v1/chat/completions",
		Body:      TranslateToChat(req, c.cfg.MapModel(req.Model), false),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return TranslateResponse(c.cfg.Name, &resp), nil
}

// Stream performs a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	resp, err := c.http.Open(ctx, httpclient.Request{
		Operation: string(provider.OpStream),
		Method:    http.MethodPost,
		Path:      "/v1/chat/completions",
		Body:      TranslateToChat(req, c.cfg.MapModel(req.Model), true),
		Accept:    "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	return httpclient.Pump(ctx, c.cfg.Name, string(provider.OpStream), resp, ParseStream(c.cfg.Name)), nil
}

func (c *Client) delete(ctx context.Context, op provider.Operation, path string) error {
	var resp DeleteResponse
	err := c.http.Do(ctx, httpclient.Request{
		Operation: string(op),
		Method:    http.MethodDelete,
		Path:      path,
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.Deleted {
		return api.NewRejectedError(c.cfg.Name, string(op), http.StatusConflict, "provider did not delete "+resp.ID)
	}
	return nil
}

func (c *Client) toModel(r httpclient.Record) api.ModelData {
	return api.ModelData{
		ID:          r.String("id"),
		Provider:    c.cfg.Name,
		Name:        r.String("name"),
		Description: r.String("description"),
		OwnedBy:     r.String("owned_by"),
		CreatedAt:   r.Int64("created"),
		Metadata:    r.Metadata("id", "object", "name", "description", "owned_by", "created"),
	}
}

func (c *Client) toFile(r httpclient.Record) api.UploadedFile {
	return api.UploadedFile{
		ID:        r.String("id"),
		Provider:  c.cfg.Name,
		Filename:  r.String("filename"),
		Purpose:   r.String("purpose"),
		Bytes:     r.Int64("bytes"),
		Status:    r.String("status"),
		CreatedAt: r.Int64("created_at"),
		Metadata:  r.Metadata("id", "object", "filename", "purpose", "bytes", "status", "created_at"),
	}
}
