package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/providertest"
	"github.com/rhuss/unigen/pkg/query"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
}

func newTestEngine(t *testing.T, cfg Config, providers ...provider.Provider) *Engine {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			t.Fatal(err)
		}
	}
	e, err := New(reg, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = fastRetry()
	return cfg
}

func catalogStub() *providertest.Stub {
	return providertest.New("local").AddModels(
		api.ModelData{ID: "m1", CreatedAt: 100},
		api.ModelData{ID: "m2", CreatedAt: 200},
		api.ModelData{ID: "m3", CreatedAt: 300},
	)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil registry")
	}
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	cfg.CacheTTL = -time.Second
	if _, err := New(provider.NewRegistry(), cfg); err == nil {
		t.Error("expected validation error")
	}
}

func TestLocalValidationMakesNoCalls(t *testing.T) {
	stub := catalogStub().WithOperations(provider.OpListModels)
	e := newTestEngine(t, testConfig(), stub)
	ctx := context.Background()

	tests := []struct {
		name     string
		run      func() error
		wantType api.ErrorType
		param    string
	}{
		{
			name:     "unknown provider",
			run:      func() error { _, err := e.GetModel(ctx, "nope", "m1"); return err },
			wantType: api.ErrorTypeInvalidRequest,
			param:    "provider",
		},
		{
			name:     "empty provider",
			run:      func() error { _, err := e.ListModels(ctx, "", nil); return err },
			wantType: api.ErrorTypeInvalidRequest,
			param:    "provider",
		},
		{
			name:     "empty id",
			run:      func() error { _, err := e.GetModel(ctx, "local", " "); return err },
			wantType: api.ErrorTypeInvalidRequest,
			param:    "id",
		},
		{
			name:     "unsupported get",
			run:      func() error { _, err := e.GetModel(ctx, "local", "m1"); return err },
			wantType: api.ErrorTypeUnsupportedCapability,
		},
		{
			name:     "unsupported delete",
			run:      func() error { return e.DeleteVoice(ctx, "local", "v1") },
			wantType: api.ErrorTypeUnsupportedCapability,
		},
		{
			name: "malformed order",
			run: func() error {
				_, err := e.ListModels(ctx, "local", query.CursorQuery{Order: "sideways"})
				return err
			},
			wantType: api.ErrorTypeInvalidRequest,
		},
		{
			name: "generate without prompt",
			run: func() error {
				_, err := e.Generate(ctx, "local", &api.GenerateRequest{Model: "m"})
				return err
			},
			wantType: api.ErrorTypeInvalidRequest,
			param:    "prompt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			apiErr, ok := api.AsAPIError(err)
			if !ok || apiErr.Type != tt.wantType {
				t.Fatalf("err = %v, want type %s", err, tt.wantType)
			}
			if tt.param != "" && apiErr.Param != tt.param {
				t.Errorf("param = %q, want %q", apiErr.Param, tt.param)
			}
		})
	}
	if n := stub.TotalCalls(); n != 0 {
		t.Errorf("provider calls = %d, want 0", n)
	}
}

func TestUnsupportedErrorNamesProviderAndOperation(t *testing.T) {
	stub := providertest.New("voiceless").WithOperations(provider.OpGenerate)
	e := newTestEngine(t, testConfig(), stub)

	_, err := e.ListVoices(context.Background(), "voiceless", nil)
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Provider != "voiceless" || apiErr.Operation != string(provider.OpListVoices) {
		t.Fatalf("err = %+v", err)
	}
	if e.Supports("voiceless", provider.OpListVoices) || !e.Supports("voiceless", provider.OpGenerate) {
		t.Error("Supports disagrees with declared operations")
	}
}

func TestListModelsPaging(t *testing.T) {
	e := newTestEngine(t, testConfig(), catalogStub())
	ctx := context.Background()

	page, err := e.ListModels(ctx, "local", query.CursorQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 2 || page.Data[0].ID != "m3" || page.Data[1].ID != "m2" || !page.HasMore {
		t.Fatalf("first page = %+v", page)
	}

	page, err = e.ListModels(ctx, "local", query.CursorQuery{Limit: 2, After: page.LastID})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "m1" || page.HasMore {
		t.Errorf("second page = %+v", page)
	}
	if page.Data[0].Provider != "local" {
		t.Errorf("provider = %q", page.Data[0].Provider)
	}
}

func TestListModelsClampsLimit(t *testing.T) {
	e := newTestEngine(t, testConfig(), catalogStub())
	page, err := e.ListModels(context.Background(), "local", query.CursorQuery{Limit: 5000})
	if err != nil {
		t.Fatal(err)
	}
	if !page.Clamped || page.Limit != 100 || len(page.Data) != 3 {
		t.Errorf("page = %+v", page)
	}
}

func TestCatalogIsCached(t *testing.T) {
	stub := catalogStub()
	e := newTestEngine(t, testConfig(), stub)
	ctx := context.Background()

	for range 3 {
		if _, err := e.ListModels(ctx, "local", query.CursorQuery{Limit: 2}); err != nil {
			t.Fatal(err)
		}
		if _, err := e.GetModel(ctx, "local", "m1"); err != nil {
			t.Fatal(err)
		}
	}
	if stub.Calls(provider.OpListModels) != 1 || stub.Calls(provider.OpGetModel) != 1 {
		t.Errorf("list calls = %d get calls = %d",
			stub.Calls(provider.OpListModels), stub.Calls(provider.OpGetModel))
	}

	// A different query shape is a different entry.
	if _, err := e.ListModels(ctx, "local", query.CursorQuery{Limit: 1}); err != nil {
		t.Fatal(err)
	}
	if stub.Calls(provider.OpListModels) != 2 {
		t.Errorf("list calls = %d, want 2", stub.Calls(provider.OpListModels))
	}
}

func TestDeleteInvalidatesProviderCache(t *testing.T) {
	stub := catalogStub()
	e := newTestEngine(t, testConfig(), stub)
	ctx := context.Background()

	if _, err := e.ListModels(ctx, "local", nil); err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteModel(ctx, "local", "m2"); err != nil {
		t.Fatal(err)
	}
	page, err := e.ListModels(ctx, "local", nil)
	if err != nil {
		t.Fatal(err)
	}
	if stub.Calls(provider.OpListModels) != 2 || len(page.Data) != 2 {
		t.Errorf("calls = %d page = %+v", stub.Calls(provider.OpListModels), page)
	}
}

func TestCacheDisabledWithZeroTTL(t *testing.T) {
	stub := catalogStub()
	cfg := testConfig()
	cfg.CacheTTL = 0
	e := newTestEngine(t, cfg, stub)

	for range 2 {
		if _, err := e.GetModel(context.Background(), "local", "m1"); err != nil {
			t.Fatal(err)
		}
	}
	if n := stub.Calls(provider.OpGetModel); n != 2 {
		t.Errorf("get calls = %d, want 2", n)
	}
}

func TestGetModelIsIdempotent(t *testing.T) {
	for _, ttl := range []time.Duration{0, time.Minute} {
		t.Run(ttl.String(), func(t *testing.T) {
			stub := providertest.New("local").AddModels(api.ModelData{
				ID:        "m1",
				CreatedAt: 100,
				OwnedBy:   "acme",
				Metadata:  map[string]any{"context_window": float64(8192), "tags": []any{"chat"}},
			})
			cfg := testConfig()
			cfg.CacheTTL = ttl
			e := newTestEngine(t, cfg, stub)

			first, err := e.GetModel(context.Background(), "local", "m1")
			if err != nil {
				t.Fatal(err)
			}
			second, err := e.GetModel(context.Background(), "local", "m1")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Errorf("records differ:\n%+v\n%+v", first, second)
			}
			if first.Metadata["context_window"] != float64(8192) {
				t.Errorf("metadata = %v", first.Metadata)
			}
		})
	}
}

func TestRetryableFailuresAreRetried(t *testing.T) {
	stub := catalogStub()
	e := newTestEngine(t, testConfig(), stub)
	unavailable := api.NewTransportError("local", "", 503, "unavailable")
	stub.FailNext(provider.OpGetModel, unavailable, unavailable)

	m, err := e.GetModel(context.Background(), "local", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || stub.Calls(provider.OpGetModel) != 3 {
		t.Errorf("model = %+v calls = %d", m, stub.Calls(provider.OpGetModel))
	}
}

func TestRetriesAreBounded(t *testing.T) {
	stub := catalogStub()
	e := newTestEngine(t, testConfig(), stub)
	unavailable := api.NewTransportError("local", "", 503, "unavailable")
	stub.FailNext(provider.OpGetModel, unavailable, unavailable, unavailable, unavailable)

	_, err := e.GetModel(context.Background(), "local", "m1")
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeTransport {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Operation != string(provider.OpGetModel) {
		t.Errorf("operation = %q", apiErr.Operation)
	}
	if n := stub.Calls(provider.OpGetModel); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFinalErrorsAreNotRetried(t *testing.T) {
	stub := catalogStub()
	e := newTestEngine(t, testConfig(), stub)

	_, err := e.GetModel(context.Background(), "local", "missing")
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeProviderRejected || apiErr.Status != 404 {
		t.Fatalf("err = %v", err)
	}
	if n := stub.Calls(provider.OpGetModel); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestCancelledContextMakesNoCall(t *testing.T) {
	stub := catalogStub()
	e := newTestEngine(t, testConfig(), stub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.ListModels(ctx, "local", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if stub.TotalCalls() != 0 {
		t.Errorf("calls = %d", stub.TotalCalls())
	}
}

func TestVoicesAndFiles(t *testing.T) {
	stub := providertest.New("mixed").
		AddVoices(api.VoiceData{ID: "v1", Name: "Rachel"}).
		AddFiles(api.UploadedFile{ID: "file-1", Filename: "a.jsonl", CreatedAt: 1})
	e := newTestEngine(t, testConfig(), stub)
	ctx := context.Background()

	v, err := e.GetVoice(ctx, "mixed", "v1")
	if err != nil || v.Name != "Rachel" {
		t.Fatalf("voice = %+v err = %v", v, err)
	}
	voices, err := e.ListVoices(ctx, "mixed", nil)
	if err != nil || len(voices.Data) != 1 {
		t.Fatalf("voices = %+v err = %v", voices, err)
	}
	f, err := e.GetFile(ctx, "mixed", "file-1")
	if err != nil || f.Filename != "a.jsonl" {
		t.Fatalf("file = %+v err = %v", f, err)
	}
	if err := e.DeleteFile(ctx, "mixed", "file-1"); err != nil {
		t.Fatal(err)
	}
	files, err := e.ListFiles(ctx, "mixed", nil)
	if err != nil || len(files.Data) != 0 {
		t.Errorf("files = %+v err = %v", files, err)
	}
}

func TestProvidersDescribesRegistry(t *testing.T) {
	e := newTestEngine(t, testConfig(), providertest.New("a"), providertest.New("b").WithOperations(provider.OpGenerate))
	infos := e.Providers()
	if len(infos) != 2 {
		t.Fatalf("infos = %+v", infos)
	}
	info, err := e.Provider("b")
	if err != nil || info.Name != "b" {
		t.Errorf("info = %+v err = %v", info, err)
	}
}

func TestCloseClosesProviders(t *testing.T) {
	stub := providertest.New("a")
	reg := provider.NewRegistry()
	_ = reg.Register(stub)
	e, err := New(reg, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !stub.Closed() {
		t.Error("provider not closed")
	}
}
