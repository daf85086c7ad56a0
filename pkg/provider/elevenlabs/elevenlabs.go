// Package elevenlabs implements the provider for the ElevenLabs speech
// API: the searchable voice library, the model list and text-to-speech
// generation, streamed as audio chunks.
package elevenlabs

import (
	"context"
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

const (
	// DefaultBaseURL is the public ElevenLabs endpoint.
	DefaultBaseURL = "https://api.elevenlabs.io"

	// DefaultOutputFormat is used when the request sets no output_format option.
	DefaultOutputFormat = "mp3_44100_128"

	// chunkSize bounds the audio carried by one stream event.
	chunkSize = 16 * 1024
)

// Provider is the ElevenLabs adapter.
type Provider struct {
	cfg  provider.Config
	http *httpclient.Client
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.VoiceGetter  = (*Provider)(nil)
	_ provider.VoiceLister  = (*Provider)(nil)
	_ provider.VoiceDeleter = (*Provider)(nil)
	_ provider.ModelLister  = (*Provider)(nil)
	_ provider.ModelGetter  = (*Provider)(nil)
	_ provider.Generator    = (*Provider)(nil)
	_ provider.Streamer     = (*Provider)(nil)
)

// New creates an ElevenLabs provider. The API key is required.
func New(cfg provider.Config) (*Provider, error) {
	cfg = cfg.WithDefaults("elevenlabs", DefaultBaseURL)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs: API key is required")
	}
	return &Provider{
		cfg: cfg,
		http: httpclient.New(httpclient.Options{
			Provider:  cfg.Name,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Headers:   cfg.Headers,
			Authorize: httpclient.HeaderAuth("xi-api-key", "", cfg.APIKey),
		}),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.cfg.Name }

// Capabilities returns the declared capability set.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Operations: []provider.Operation{
			provider.OpGetVoice, provider.OpListVoices, provider.OpDeleteVoice,
			provider.OpGetModel, provider.OpListModels,
			provider.OpGenerate, provider.OpStream,
		},
		Streaming: true,
		Audio:     true,
	}
}

// Profile returns the pagination of each catalog. Voices page with a
// token and accept search, sort and filters; models are returned whole.
func (p *Provider) Profile(resource provider.Resource) query.Profile {
	if resource != provider.ResourceVoices {
		return query.LocalProfile(p.cfg.Name, string(resource))
	}
	return query.Profile{
		Provider:     p.cfg.Name,
		Resource:     string(resource),
		Scheme:       query.SchemeRich,
		MinLimit:     1,
		MaxLimit:     100,
		DefaultLimit: 10,
		Params: map[query.Field]string{
			query.FieldLimit:         "page_size",
			query.FieldPageToken:     "next_page_token",
			query.FieldSearch:        "search",
			query.FieldSort:          "sort",
			query.FieldSortDirection: "sort_direction",
		},
		Flags: map[string]string{
			"voice_type": "voice_type",
			"category":   "category",
		},
	}
}

// Close releases client resources.
func (p *Provider) Close() error { return p.http.Close() }

// ListVoices pages GET /v2/voices.
func (p *Provider) ListVoices(ctx context.Context, q query.Query) (api.Page[api.VoiceData], error) {
	n, err := query.Normalize(p.Profile(provider.ResourceVoices), q)
	if err != nil {
		return api.Page[api.VoiceData]{}, err
	}
	var resp voiceList
	err = p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListVoices),
		Method:    http.MethodGet,
		Path:      "/v2/voices",
		Params:    n.Params,
	}, &resp)
	if provider.StaleCursor(err, n) {
		return provider.EmptyPage[api.VoiceData](n), nil
	}
	if err != nil {
		return api.Page[api.VoiceData]{}, err
	}

	voices := make([]api.VoiceData, 0, len(resp.Voices))
	for _, r := range resp.Voices {
		voices = append(voices, p.toVoice(r))
	}
	page := api.NewPage(voices, api.VoiceID)
	page.HasMore = resp.HasMore
	page.NextPageToken = resp.NextPageToken
	return query.Annotate(page, n), nil
}

// GetVoice fetches GET /v1/voices/{id}.
func (p *Provider) GetVoice(ctx context.Context, id string) (*api.VoiceData, error) {
	var r httpclient.Record
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpGetVoice),
		Method:    http.MethodGet,
		Path:      "/v1/voices/" + url.PathEscape(id),
	}, &r)
	if err != nil {
		return nil, err
	}
	v := p.toVoice(r)
	return &v, nil
}

// DeleteVoice removes a voice from the library.
func (p *Provider) DeleteVoice(ctx context.Context, id string) error {
	var resp struct {
		Status string `json:"status"`
	}
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpDeleteVoice),
		Method:    http.MethodDelete,
		Path:      "/v1/voices/" + url.PathEscape(id),
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return api.NewRejectedError(p.cfg.Name, string(provider.OpDeleteVoice), http.StatusConflict,
			"voice "+id+" not deleted: "+resp.Status)
	}
	return nil
}

// fetchModels returns the whole model list. GET /v1/models answers with
// a bare JSON array.
func (p *Provider) fetchModels(ctx context.Context) ([]api.ModelData, error) {
	var records []httpclient.Record
	err := p.http.Do(ctx, httpclient.Request{
		Operation: string(provider.OpListModels),
		Method:    http.MethodGet,
		Path:      "/v1/models",
	}, &records)
	if err != nil {
		return nil, err
	}
	models := make([]api.ModelData, 0, len(records))
	for _, r := range records {
		models = append(models, api.ModelData{
			ID:          r.String("model_id"),
			Provider:    p.cfg.Name,
			Name:        r.String("name"),
			Description: r.String("description"),
			OwnedBy:     "elevenlabs",
			Metadata:    r.Metadata("model_id", "name", "description"),
		})
	}
	return models, nil
}

// ListModels pages the model list locally.
func (p *Provider) ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error) {
	n, err := query.Normalize(p.Profile(provider.ResourceModels), q)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	models, err := p.fetchModels(ctx)
	if err != nil {
		return api.Page[api.ModelData]{}, err
	}
	return query.Paginate(models, api.ModelID, func(m api.ModelData) int64 { return m.CreatedAt }, n), nil
}

// GetModel resolves a model from the model list.
func (p *Provider) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	models, err := p.fetchModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if models[i].ID == id {
			return &models[i], nil
		}
	}
	return nil, api.MapHTTPStatus(p.cfg.Name, string(provider.OpGetModel), http.StatusNotFound, "model "+id+" not found")
}

// Generate synthesizes speech for the request text.
func (p *Provider) Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error) {
	format := outputFormat(req)
	audio, contentType, err := p.http.DoRaw(ctx, httpclient.Request{
		Operation: string(provider.OpGenerate),
		Method:    http.MethodPost,
		Path:      "/v1/text-to-speech/" + url.PathEscape(req.Voice),
		Params:    url.Values{"output_format": {format}},
		Body:      p.translate(req),
		Accept:    "audio/*",
	})
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(contentType, "application/json") {
		return nil, api.NewTransportError(p.cfg.Name, string(provider.OpGenerate), http.StatusOK,
			"expected audio, got "+contentType)
	}
	return &api.GenerateResult{
		Provider:     p.cfg.Name,
		Model:        p.cfg.MapModel(req.Model),
		Audio:        audio,
		AudioFormat:  format,
		FinishReason: "completed",
	}, nil
}

// Stream synthesizes speech and emits it as audio chunk events between
// an audio started and an audio completed event.
func (p *Provider) Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	format := outputFormat(req)
	resp, err := p.http.Open(ctx, httpclient.Request{
		Operation: string(provider.OpStream),
		Method:    http.MethodPost,
		Path:      "/v1/text-to-speech/" + url.PathEscape(req.Voice) + "/stream",
		Params:    url.Values{"output_format": {format}},
		Body:      p.translate(req),
		Accept:    "audio/*",
	})
	if err != nil {
		return nil, err
	}
	return httpclient.Pump(ctx, p.cfg.Name, string(provider.OpStream), resp, parseAudio(format)), nil
}

func parseAudio(format string) httpclient.ParseFunc {
	return func(ctx context.Context, body io.Reader, em *httpclient.Emitter) error {
		if !em.Emit(api.AudioEvent(api.AudioStarted, format, nil)) {
			return ctx.Err()
		}
		buf := make([]byte, chunkSize)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !em.Emit(api.AudioEvent(api.AudioChunk, format, chunk)) {
					return ctx.Err()
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
		}
		em.Emit(api.AudioEvent(api.AudioCompleted, format, nil))
		return nil
	}
}

func (p *Provider) translate(req *api.GenerateRequest) ttsRequest {
	tr := ttsRequest{
		Text:    speechText(req),
		ModelID: p.cfg.MapModel(req.Model),
	}
	if vs, ok := req.Options["voice_settings"].(map[string]any); ok {
		tr.VoiceSettings = vs
	}
	if lang, ok := req.Options["language_code"].(string); ok {
		tr.LanguageCode = lang
	}
	return tr
}

// speechText is the prompt, or else the content of the last user turn.
func speechText(req *api.GenerateRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == api.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func outputFormat(req *api.GenerateRequest) string {
	if f, ok := req.Options["output_format"].(string); ok && f != "" {
		return f
	}
	return DefaultOutputFormat
}

func (p *Provider) toVoice(r httpclient.Record) api.VoiceData {
	return api.VoiceData{
		ID:          r.String("voice_id"),
		Provider:    p.cfg.Name,
		Name:        r.String("name"),
		Category:    r.String("category"),
		Description: r.String("description"),
		CreatedAt:   r.Int64("created_at_unix"),
		Metadata:    r.Metadata("voice_id", "name", "category", "description", "created_at_unix"),
	}
}
