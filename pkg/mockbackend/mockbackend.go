// Package mockbackend serves deterministic fakes of the OpenAI, Anthropic,
// Gemini, ElevenLabs and Ollama APIs for integration tests and local runs.
//
// Each dialect lives under its own prefix, so one server can back every
// adapter: point a provider's base URL at <server>/openai, <server>/anthropic,
// <server>/gemini, <server>/elevenlabs or <server>/ollama.
//
// Replies are derived from the conversation:
//   - a tool result in the conversation yields "Tool said: <result>"
//   - otherwise, offered tools yield a call to the first tool with
//     {"message": <last user text>}
//   - "count from 1 to 5" yields "1, 2, 3, 4, 5"
//   - a system prompt yields a pirate greeting
//   - anything else yields "Hello, nice day!"
//
// A model named "mock-fail" answers every generation with HTTP 500, and
// "mock-ratelimit" with HTTP 429, to drive retry paths.
package mockbackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Created is the fixed creation time reported for catalog entries.
const Created int64 = 1700000000

// Prefixes of the dialects served by Handler.
const (
	PrefixOpenAI     = "/openai"
	PrefixAnthropic  = "/anthropic"
	PrefixGemini     = "/gemini"
	PrefixElevenLabs = "/elevenlabs"
	PrefixOllama     = "/ollama"
)

// Audio is the payload returned for speech synthesis.
var Audio = []byte("ID3mock-audio-frame-0001mock-audio-frame-0002")

// Backend holds the mutable catalog state shared by every dialect.
type Backend struct {
	mu      sync.Mutex
	models  []string
	voices  []string
	files   []string
	deleted map[string]bool
	calls   map[string]int
}

// New returns a backend with two models, two voices and one file.
func New() *Backend {
	return &Backend{
		models:  []string{"mock-model", "mock-large"},
		voices:  []string{"voice-alice", "voice-bob"},
		files:   []string{"file-mock-1"},
		deleted: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

// Handler routes every dialect.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	b.routeOpenAI(mux, PrefixOpenAI)
	b.routeAnthropic(mux, PrefixAnthropic)
	b.routeGemini(mux, PrefixGemini)
	b.routeElevenLabs(mux, PrefixElevenLabs)
	b.routeOllama(mux, PrefixOllama)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return b.count(mux)
}

// Calls returns how many requests hit path.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.URL.Path]++
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// live returns the ids of kind that were not deleted.
func (b *Backend) live(ids []string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !b.deleted[id] {
			out = append(out, id)
		}
	}
	return out
}

func (b *Backend) exists(ids []string, id string) bool {
	for _, v := range b.live(ids) {
		if v == id {
			return true
		}
	}
	return false
}

// remove marks id deleted and reports whether it existed.
func (b *Backend) remove(ids []string, id string) bool {
	if !b.exists(ids, id) {
		return false
	}
	b.mu.Lock()
	b.deleted[id] = true
	b.mu.Unlock()
	return true
}

// turn is the part of a conversation the scripted replies look at.
type turn struct {
	prompt     string
	system     bool
	tools      []string
	toolResult string
	hasResult  bool
}

// reply is the scripted answer to a turn: either text or one tool call.
type reply struct {
	text string
	tool string
	args string
}

func (t turn) reply() reply {
	switch {
	case t.hasResult:
		return reply{text: "Tool said: " + t.toolResult}
	case len(t.tools) > 0:
		args, _ := json.Marshal(map[string]string{"message": t.prompt})
		return reply{tool: t.tools[0], args: string(args)}
	case strings.Contains(strings.ToLower(t.prompt), "count from 1 to 5"):
		return reply{text: "1, 2, 3, 4, 5"}
	case t.system:
		return reply{text: "Ahoy there, matey! Welcome aboard!"}
	default:
		return reply{text: "Hello, nice day!"}
	}
}

// tokens splits text into the chunks streamed for it.
func tokens(text string) []string {
	var out []string
	for _, w := range strings.SplitAfter(text, " ") {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// failure returns the status a model is scripted to fail with, or 0.
func failure(model string) int {
	switch model {
	case "mock-fail":
		return http.StatusInternalServerError
	case "mock-ratelimit":
		return http.StatusTooManyRequests
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	return f, true
}

// writeEvent writes one SSE frame. An empty name omits the event line.
func writeEvent(w http.ResponseWriter, f http.Flusher, name string, v any) {
	data, _ := json.Marshal(v)
	if name != "" {
		_, _ = w.Write([]byte("event: " + name + "\n"))
	}
	_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
	f.Flush()
}
