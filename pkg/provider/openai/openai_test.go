package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/query"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(provider.Config{}); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestDefaults(t *testing.T) {
	p, err := New(provider.Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Name() != "openai" {
		t.Errorf("name = %q", p.Name())
	}
	for _, op := range []provider.Operation{
		provider.OpDeleteModel, provider.OpListFiles, provider.OpDeleteFile, provider.OpStream,
	} {
		if !provider.Supports(p, op) {
			t.Errorf("expected %s to be supported", op)
		}
	}
	for _, op := range []provider.Operation{provider.OpListVoices, provider.OpGetVoice} {
		if provider.Supports(p, op) {
			t.Errorf("expected %s to be unsupported", op)
		}
	}
	if got := p.Profile(provider.ResourceFiles).MaxLimit; got != 10000 {
		t.Errorf("files max limit = %d", got)
	}
}

func TestListFilesClampsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10000" {
			t.Errorf("limit = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[],"has_more":false}`))
	}))
	defer srv.Close()

	p, err := New(provider.Config{BaseURL: srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	page, err := p.ListFiles(context.Background(), query.CursorQuery{Limit: 50000})
	if err != nil {
		t.Fatal(err)
	}
	if !page.Clamped || page.Limit != 10000 {
		t.Errorf("clamped = %v, limit = %d", page.Clamped, page.Limit)
	}
	if page.Data == nil {
		t.Error("data should be an empty slice, not nil")
	}
}
