// Package integration runs the assembled unigen gateway against the mock
// provider backend. Both are started in-process with net/http/httptest.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/config"
	"github.com/rhuss/unigen/pkg/gateway"
	"github.com/rhuss/unigen/pkg/mockbackend"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the gateway and the mock backend behind it.
type TestEnvironment struct {
	Gateway     *httptest.Server
	MockBackend *httptest.Server
	Mock        *mockbackend.Backend

	gw *gateway.Gateway
}

func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	mock := mockbackend.New()
	env := &TestEnvironment{Mock: mock, MockBackend: httptest.NewServer(mock.Handler())}

	cfg := baseConfig(env.MockBackend.URL)
	gw, err := gateway.Build(context.Background(), cfg)
	if err != nil {
		env.MockBackend.Close()
		panic(fmt.Sprintf("building gateway: %v", err))
	}
	env.gw = gw
	env.Gateway = httptest.NewServer(gw.Server().Handler())
	return env
}

// baseConfig points one provider of every dialect at the mock backend.
// Tool calls are approved automatically and retries are fast.
func baseConfig(mockURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Providers = []config.ProviderConfig{
		{Type: "openai", BaseURL: mockURL + mockbackend.PrefixOpenAI, APIKey: "sk-mock"},
		{Type: "anthropic", BaseURL: mockURL + mockbackend.PrefixAnthropic, APIKey: "mock"},
		{Type: "gemini", BaseURL: mockURL + mockbackend.PrefixGemini, APIKey: "mock"},
		{Type: "ollama", BaseURL: mockURL + mockbackend.PrefixOllama},
		{Type: "elevenlabs", BaseURL: mockURL + mockbackend.PrefixElevenLabs, APIKey: "mock"},
	}
	cfg.Engine.Retry.MaxAttempts = 2
	cfg.Engine.Retry.InitialBackoff = time.Millisecond
	cfg.Engine.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Engine.AllowedTools = []string{"echo"}
	cfg.Storage.Type = "memory"
	cfg.Approval.Responder = "auto_approve"
	return &cfg
}

// Teardown shuts down both servers.
func (env *TestEnvironment) Teardown() {
	if env.Gateway != nil {
		env.Gateway.Close()
	}
	if env.gw != nil {
		_ = env.gw.Close()
	}
	if env.MockBackend != nil {
		env.MockBackend.Close()
	}
}

// BaseURL returns the gateway's /v1 prefix.
func (env *TestEnvironment) BaseURL() string {
	return env.Gateway.URL + "/v1"
}

// newGateway starts a private gateway on the shared mock backend after
// applying mutate to the base configuration.
func newGateway(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	cfg := baseConfig(testEnv.MockBackend.URL)
	if mutate != nil {
		mutate(cfg)
	}
	gw, err := gateway.Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("building gateway: %v", err)
	}
	srv := httptest.NewServer(gw.Server().Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Close()
	})
	return srv.URL + "/v1"
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func deleteURL(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("creating DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(data)
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// expectStatus fails the test with the response body when the status
// differs from want.
func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, readBody(t, resp))
	}
}

// decodeError reads an error envelope.
func decodeError(t *testing.T, resp *http.Response) *api.APIError {
	t.Helper()
	var body api.ErrorResponse
	decodeJSON(t, resp, &body)
	if body.Error == nil {
		t.Fatal("response has no error object")
	}
	return body.Error
}

// parseSSEEvents reads a stream until [DONE] and returns its events.
func parseSSEEvents(t *testing.T, resp *http.Response) []api.StreamEvent {
	t.Helper()
	defer resp.Body.Close()

	var events []api.StreamEvent
	done := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			done = true
			break
		}
		var ev api.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decoding event %q: %v", data, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !done {
		t.Error("stream ended without [DONE]")
	}
	return events
}

// collectText joins the text deltas of events.
func collectText(events []api.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Kind == api.EventTextDelta {
			b.WriteString(ev.Delta)
		}
	}
	return b.String()
}
