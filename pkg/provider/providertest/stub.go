// Package providertest provides a deterministic in-memory provider for
// tests of the engine, cache, builder and gateway layers.
package providertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/query"
)

// Stub implements every operation interface over in-memory catalogs.
// Only operations listed in Caps.Operations are supported. Calls are
// counted per operation so tests can assert that no call was made.
//
// Errors queued with FailNext are returned by the next calls of that
// operation, one per call, before normal behaviour resumes.
type Stub struct {
	ProviderName string
	Caps         provider.Capabilities

	// Events is replayed by Stream. When empty, Stream splits Reply into
	// word deltas.
	Events []api.StreamEvent

	// Reply is the generated text.
	Reply string

	// EventDelay pauses between streamed events.
	EventDelay time.Duration

	mu       sync.Mutex
	models   []api.ModelData
	voices   []api.VoiceData
	files    []api.UploadedFile
	calls    map[provider.Operation]int
	failures map[provider.Operation][]error
	closed   bool
}

var (
	_ provider.Provider     = (*Stub)(nil)
	_ provider.ModelGetter  = (*Stub)(nil)
	_ provider.ModelLister  = (*Stub)(nil)
	_ provider.ModelDeleter = (*Stub)(nil)
	_ provider.VoiceGetter  = (*Stub)(nil)
	_ provider.VoiceLister  = (*Stub)(nil)
	_ provider.VoiceDeleter = (*Stub)(nil)
	_ provider.FileGetter   = (*Stub)(nil)
	_ provider.FileLister   = (*Stub)(nil)
	_ provider.FileDeleter  = (*Stub)(nil)
	_ provider.Generator    = (*Stub)(nil)
	_ provider.Streamer     = (*Stub)(nil)
)

// New returns a stub supporting every operation with streaming and tool
// calling enabled.
func New(name string) *Stub {
	return &Stub{
		ProviderName: name,
		Caps: provider.Capabilities{
			Operations:  provider.AllOperations,
			Streaming:   true,
			ToolCalling: true,
		},
		Reply:    "hello from " + name,
		calls:    make(map[provider.Operation]int),
		failures: make(map[provider.Operation][]error),
	}
}

// WithOperations restricts the declared operations.
func (s *Stub) WithOperations(ops ...provider.Operation) *Stub {
	s.Caps.Operations = ops
	return s
}

// AddModels appends models to the catalog.
func (s *Stub) AddModels(models ...api.ModelData) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		m.Provider = s.ProviderName
		s.models = append(s.models, m)
	}
	return s
}

// AddVoices appends voices to the catalog.
func (s *Stub) AddVoices(voices ...api.VoiceData) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range voices {
		v.Provider = s.ProviderName
		s.voices = append(s.voices, v)
	}
	return s
}

// AddFiles appends files to the catalog.
func (s *Stub) AddFiles(files ...api.UploadedFile) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		f.Provider = s.ProviderName
		s.files = append(s.files, f)
	}
	return s
}

// FailNext queues errors for the next calls of op.
func (s *Stub) FailNext(op provider.Operation, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// Calls returns how often op was invoked.
func (s *Stub) Calls(op provider.Operation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of invocations across all operations.
func (s *Stub) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Closed reports whether Close was called.
func (s *Stub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Name implements provider.Provider.
func (s *Stub) Name() string { return s.ProviderName }

// Capabilities implements provider.Provider.
func (s *Stub) Capabilities() provider.Capabilities { return s.Caps }

// Profile pages every catalog locally.
func (s *Stub) Profile(resource provider.Resource) query.Profile {
	return query.LocalProfile(s.ProviderName, string(resource))
}

// Close implements provider.Provider.
func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// enter counts a call and pops a queued failure.
func (s *Stub) enter(ctx context.Context, op provider.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return ctx.Err()
}

func (s *Stub) notFound(op provider.Operation, kind, id string) error {
	return api.MapHTTPStatus(s.ProviderName, string(op), 404, kind+" "+id+" not found")
}

// ListModels implements provider.ModelLister.
func (s *Stub) ListModels(ctx context.Context, q query.Query) (api.Page[api.ModelData], error) {
	if err := s.enter(ctx, provider.OpListModels); err != nil {
		return api.Page[api.ModelData]{}, err
	}
	return list(s, provider.ResourceModels, q, s.snapshotModels(), api.ModelID,
		func(m api.ModelData) int64 { return m.CreatedAt })
}

// GetModel implements provider.ModelGetter.
func (s *Stub) GetModel(ctx context.Context, id string) (*api.ModelData, error) {
	if err := s.enter(ctx, provider.OpGetModel); err != nil {
		return nil, err
	}
	for _, m := range s.snapshotModels() {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, s.notFound(provider.OpGetModel, "model", id)
}

// DeleteModel implements provider.ModelDeleter.
func (s *Stub) DeleteModel(ctx context.Context, id string) error {
	if err := s.enter(ctx, provider.OpDeleteModel); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.models {
		if m.ID == id {
			s.models = append(s.models[:i], s.models[i+1:]...)
			return nil
		}
	}
	return s.notFound(provider.OpDeleteModel, "model", id)
}

// ListVoices implements provider.VoiceLister.
func (s *Stub) ListVoices(ctx context.Context, q query.Query) (api.Page[api.VoiceData], error) {
	if err := s.enter(ctx, provider.OpListVoices); err != nil {
		return api.Page[api.VoiceData]{}, err
	}
	s.mu.Lock()
	voices := append([]api.VoiceData(nil), s.voices...)
	s.mu.Unlock()
	return list(s, provider.ResourceVoices, q, voices, api.VoiceID,
		func(v api.VoiceData) int64 { return v.CreatedAt })
}

// GetVoice implements provider.VoiceGetter.
func (s *Stub) GetVoice(ctx context.Context, id string) (*api.VoiceData, error) {
	if err := s.enter(ctx, provider.OpGetVoice); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.voices {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, s.notFound(provider.OpGetVoice, "voice", id)
}

// DeleteVoice implements provider.VoiceDeleter.
func (s *Stub) DeleteVoice(ctx context.Context, id string) error {
	if err := s.enter(ctx, provider.OpDeleteVoice); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.voices {
		if v.ID == id {
			s.voices = append(s.voices[:i], s.voices[i+1:]...)
			return nil
		}
	}
	return s.notFound(provider.OpDeleteVoice, "voice", id)
}

// ListFiles implements provider.FileLister.
func (s *Stub) ListFiles(ctx context.Context, q query.Query) (api.Page[api.UploadedFile], error) {
	if err := s.enter(ctx, provider.OpListFiles); err != nil {
		return api.Page[api.UploadedFile]{}, err
	}
	s.mu.Lock()
	files := append([]api.UploadedFile(nil), s.files...)
	s.mu.Unlock()
	return list(s, provider.ResourceFiles, q, files, api.FileID,
		func(f api.UploadedFile) int64 { return f.CreatedAt })
}

// GetFile implements provider.FileGetter.
func (s *Stub) GetFile(ctx context.Context, id string) (*api.UploadedFile, error) {
	if err := s.enter(ctx, provider.OpGetFile); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, s.notFound(provider.OpGetFile, "file", id)
}

// DeleteFile implements provider.FileDeleter.
func (s *Stub) DeleteFile(ctx context.Context, id string) error {
	if err := s.enter(ctx, provider.OpDeleteFile); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return nil
		}
	}
	return s.notFound(provider.OpDeleteFile, "file", id)
}

// Generate implements provider.Generator. It echoes Reply and returns
// one tool call per request tool when the prompt asks for "tools".
func (s *Stub) Generate(ctx context.Context, req *api.GenerateRequest) (*api.GenerateResult, error) {
	if err := s.enter(ctx, provider.OpGenerate); err != nil {
		return nil, err
	}
	res := &api.GenerateResult{
		ID:           "gen_" + s.ProviderName,
		Provider:     s.ProviderName,
		Model:        req.Model,
		Text:         s.Reply,
		FinishReason: "stop",
		Usage:        &api.Usage{InputTokens: len(strings.Fields(req.Prompt)), OutputTokens: len(strings.Fields(s.Reply))},
	}
	res.Usage.TotalTokens = res.Usage.InputTokens + res.Usage.OutputTokens
	if strings.Contains(req.Prompt, "tools") {
		for _, t := range req.Tools {
			res.ToolCalls = append(res.ToolCalls, api.ToolCall{ID: api.NewCallID(), Name: t.Name, Arguments: "{}"})
		}
		if len(res.ToolCalls) > 0 {
			res.FinishReason = "tool_calls"
		}
	}
	return res, nil
}

// Stream implements provider.Streamer. Events get sequence numbers in
// emission order; nothing is sent once ctx is done.
func (s *Stub) Stream(ctx context.Context, req *api.GenerateRequest) (<-chan api.StreamEvent, error) {
	if err := s.enter(ctx, provider.OpStream); err != nil {
		return nil, err
	}
	events := s.Events
	if len(events) == 0 {
		events = append(events, api.StatusEvent(api.StatusStarted, ""))
		for i, w := range strings.Fields(s.Reply) {
			if i > 0 {
				w = " " + w
			}
			events = append(events, api.TextDeltaEvent(w))
		}
		events = append(events, api.StatusEvent(api.StatusCompleted, ""))
	}

	ch := make(chan api.StreamEvent)
	go func() {
		defer close(ch)
		for i, ev := range events {
			if s.EventDelay > 0 && i > 0 {
				select {
				case <-time.After(s.EventDelay):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			ev.Sequence = i + 1
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *Stub) snapshotModels() []api.ModelData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ModelData(nil), s.models...)
}

func list[T any](s *Stub, r provider.Resource, q query.Query, items []T, idOf func(T) string, createdOf func(T) int64) (api.Page[T], error) {
	n, err := query.Normalize(s.Profile(r), q)
	if err != nil {
		return api.Page[T]{}, err
	}
	return query.Paginate(items, idOf, createdOf, n), nil
}
