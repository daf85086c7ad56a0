package mockbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/anthropic"
	"github.com/rhuss/unigen/pkg/provider/elevenlabs"
	"github.com/rhuss/unigen/pkg/provider/gemini"
	"github.com/rhuss/unigen/pkg/provider/ollama"
	"github.com/rhuss/unigen/pkg/provider/openai"
	"github.com/rhuss/unigen/pkg/query"
)

type chatProvider interface {
	provider.Generator
	provider.Streamer
	provider.ModelLister
}

func newServer(t *testing.T) (*Backend, string) {
	t.Helper()
	b := New()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv.URL
}

func chatProviders(t *testing.T, base string) map[string]chatProvider {
	t.Helper()
	must := func(p chatProvider, err error) chatProvider {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	return map[string]chatProvider{
		"openai":    must(openai.New(provider.Config{BaseURL: base + PrefixOpenAI, APIKey: "k"})),
		"anthropic": must(anthropic.New(provider.Config{BaseURL: base + PrefixAnthropic, APIKey: "k"})),
		"gemini":    must(gemini.New(provider.Config{BaseURL: base + PrefixGemini, APIKey: "k"})),
		"ollama":    must(ollama.New(provider.Config{BaseURL: base + PrefixOllama})),
	}
}

func TestGenerateAcrossDialects(t *testing.T) {
	_, base := newServer(t)
	for name, p := range chatProviders(t, base) {
		t.Run(name, func(t *testing.T) {
			res, err := p.Generate(context.Background(), &api.GenerateRequest{
				Model: "mock-model", Prompt: "Please count from 1 to 5",
			})
			if err != nil {
				t.Fatal(err)
			}
			if res.Text != "1, 2, 3, 4, 5" {
				t.Errorf("text = %q", res.Text)
			}
			if res.Usage == nil || res.Usage.InputTokens != 10 {
				t.Errorf("usage = %+v", res.Usage)
			}
		})
	}
}

func TestStreamAcrossDialects(t *testing.T) {
	_, base := newServer(t)
	for name, p := range chatProviders(t, base) {
		t.Run(name, func(t *testing.T) {
			ch, err := p.Stream(context.Background(), &api.GenerateRequest{Model: "mock-model", Prompt: "hi"})
			if err != nil {
				t.Fatal(err)
			}
			text := ""
			var last api.StreamEvent
			for ev := range ch {
				text += ev.Delta
				last = ev
			}
			if text != "Hello, nice day!" {
				t.Errorf("text = %q", text)
			}
			if last.Status != api.StatusCompleted {
				t.Errorf("last event = %+v", last)
			}
		})
	}
}

func TestToolCallAcrossDialects(t *testing.T) {
	_, base := newServer(t)
	tool := api.ToolDefinition{Name: "echo", Parameters: json.RawMessage(`{"type":"object"}`)}
	for name, p := range chatProviders(t, base) {
		t.Run(name, func(t *testing.T) {
			req := &api.GenerateRequest{Model: "mock-model", Prompt: "ping", Tools: []api.ToolDefinition{tool}}
			res, err := p.Generate(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "echo" {
				t.Fatalf("tool calls = %+v", res.ToolCalls)
			}
			var args map[string]string
			if err := json.Unmarshal([]byte(res.ToolCalls[0].Arguments), &args); err != nil || args["message"] != "ping" {
				t.Errorf("arguments = %s", res.ToolCalls[0].Arguments)
			}

			ch, err := p.Stream(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}
			var completed *api.ToolCall
			for ev := range ch {
				if ev.Kind == api.EventToolCallCompleted {
					completed = ev.ToolCall
				}
			}
			if completed == nil || completed.Name != "echo" {
				t.Errorf("streamed call = %+v", completed)
			}
		})
	}
}

func TestToolResultIsQuoted(t *testing.T) {
	_, base := newServer(t)
	p := chatProviders(t, base)["openai"]
	res, err := p.Generate(context.Background(), &api.GenerateRequest{
		Model: "mock-model",
		Messages: []api.Message{
			{Role: api.RoleUser, Content: "ping"},
			{Role: api.RoleAssistant, ToolCalls: []api.ToolCall{{ID: "c1", Name: "echo", Arguments: `{}`}}},
			{Role: api.RoleTool, ToolCallID: "c1", Content: "pong"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Tool said: pong" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestScriptedFailures(t *testing.T) {
	_, base := newServer(t)
	p := chatProviders(t, base)["anthropic"]
	tests := []struct {
		model  string
		status int
	}{
		{"mock-fail", http.StatusInternalServerError},
		{"mock-ratelimit", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		_, err := p.Generate(context.Background(), &api.GenerateRequest{Model: tt.model, Prompt: "x"})
		apiErr, ok := api.AsAPIError(err)
		if !ok || apiErr.Status != tt.status {
			t.Errorf("%s: err = %v", tt.model, err)
		}
	}
}

func TestCatalogDelete(t *testing.T) {
	b, base := newServer(t)
	p, err := openai.New(provider.Config{BaseURL: base + PrefixOpenAI, APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	page, err := p.ListModels(ctx, query.CursorQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 2 {
		t.Fatalf("models = %+v", page.Data)
	}
	if err := p.DeleteModel(ctx, "mock-large"); err != nil {
		t.Fatal(err)
	}
	_, err = p.GetModel(ctx, "mock-large")
	if apiErr, ok := api.AsAPIError(err); !ok || apiErr.Status != http.StatusNotFound {
		t.Errorf("get deleted: %v", err)
	}
	if n := b.Calls(PrefixOpenAI + "/v1/models/mock-large"); n != 2 {
		t.Errorf("calls = %d", n)
	}
}

func TestElevenLabsVoicesAndSpeech(t *testing.T) {
	_, base := newServer(t)
	p, err := elevenlabs.New(provider.Config{BaseURL: base + PrefixElevenLabs, APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	page, err := p.ListVoices(ctx, query.FieldsQuery{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "voice-alice" || !page.HasMore || page.NextPageToken == "" {
		t.Fatalf("first page = %+v", page)
	}

	res, err := p.Generate(ctx, &api.GenerateRequest{Voice: "voice-bob", Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Audio, Audio) {
		t.Errorf("audio = %q", res.Audio)
	}

	ch, err := p.Stream(ctx, &api.GenerateRequest{Voice: "voice-bob", Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	var audio []byte
	for ev := range ch {
		if ev.Kind == api.EventAudio && ev.Audio.Phase == api.AudioChunk {
			audio = append(audio, ev.Audio.Data...)
		}
	}
	if !bytes.Equal(audio, Audio) {
		t.Errorf("streamed audio = %q", audio)
	}
}
