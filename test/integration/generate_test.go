package integration

import (
	"net/http"
	"testing"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/config"
)

var chatProviders = []string{"openai", "anthropic", "gemini", "ollama"}

func withoutTools(c *config.Config) {
	c.Engine.BuiltinTools = false
	c.Engine.AllowedTools = nil
}

func generate(t *testing.T, base, provider string, body map[string]any) api.GenerateResult {
	t.Helper()
	resp := postJSON(t, base+"/providers/"+provider+"/generate", body)
	expectStatus(t, resp, http.StatusOK)
	var res api.GenerateResult
	decodeJSON(t, resp, &res)
	return res
}

func TestGenerateAcrossDialects(t *testing.T) {
	base := newGateway(t, withoutTools)

	for _, name := range chatProviders {
		t.Run(name, func(t *testing.T) {
			res := generate(t, base, name, map[string]any{"model": "mock-model", "prompt": "Say hello"})
			if res.Text != "Hello, nice day!" {
				t.Errorf("text = %q", res.Text)
			}
			if res.Provider != name {
				t.Errorf("provider = %q, want %q", res.Provider, name)
			}
			if res.FinishReason == "" {
				t.Error("finish reason is empty")
			}

			res = generate(t, base, name, map[string]any{
				"model":  "mock-model",
				"system": "You are a pirate.",
				"prompt": "Say hello",
			})
			if res.Text != "Ahoy there, matey! Welcome aboard!" {
				t.Errorf("system prompt ignored: %q", res.Text)
			}
		})
	}
}

func TestGenerateRunsToolLoop(t *testing.T) {
	for _, name := range chatProviders {
		t.Run(name, func(t *testing.T) {
			res := generate(t, testEnv.BaseURL(), name, map[string]any{"model": "mock-model", "prompt": "ping"})
			if res.Text != "Tool said: ping" {
				t.Errorf("text = %q", res.Text)
			}
			if len(res.ToolCalls) != 0 {
				t.Errorf("handled tool calls leaked into the result: %+v", res.ToolCalls)
			}
		})
	}
}

func TestGenerateReturnsUnhandledToolCalls(t *testing.T) {
	base := newGateway(t, withoutTools)

	res := generate(t, base, "openai", map[string]any{
		"model":  "mock-model",
		"prompt": "weather in Paris",
		"tools": []map[string]any{{
			"name":       "get_weather",
			"parameters": map[string]any{"type": "object"},
		}},
	})
	if len(res.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", res.ToolCalls)
	}
	if res.ToolCalls[0].Name != "get_weather" || res.ToolCalls[0].Arguments == "" {
		t.Errorf("tool call = %+v", res.ToolCalls[0])
	}
}

func TestGenerateSpeech(t *testing.T) {
	res := generate(t, testEnv.BaseURL(), "elevenlabs", map[string]any{
		"model":  "eleven_multilingual_v2",
		"voice":  "voice-alice",
		"prompt": "Hello there",
	})
	if len(res.Audio) == 0 {
		t.Error("no audio returned")
	}
	if res.AudioFormat == "" {
		t.Error("audio format is empty")
	}
	if res.Text != "" {
		t.Errorf("speech result carries text %q", res.Text)
	}
}
