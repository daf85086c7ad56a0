package debug

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "providers", []string{"providers"}},
		{"multiple", "cache,stream", []string{"cache", "stream"}},
		{"with spaces", " query , approval ", []string{"approval", "query"}},
		{"uppercase normalized", "PROVIDERS,Engine", []string{"engine", "providers"}},
		{"empty segments", "mcp,,auth", []string{"auth", "mcp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for _, k := range tt.want {
				if !got[k] {
					t.Errorf("category %q missing", k)
				}
			}
		})
	}
}

func withCategories(t *testing.T, s string) {
	t.Helper()
	orig := *enabled.Load()
	setCategories(parseCategories(s))
	t.Cleanup(func() { setCategories(orig) })
}

func TestEnabled(t *testing.T) {
	withCategories(t, "providers,cache")

	if !Enabled("providers") || !Enabled("cache") {
		t.Error("configured categories should be enabled")
	}
	if Enabled("mcp") {
		t.Error("mcp should not be enabled")
	}

	withCategories(t, "all")
	if !Enabled("anything") {
		t.Error("all should enable every category")
	}
}

func TestCategoriesSorted(t *testing.T) {
	withCategories(t, "stream,approval,cache")
	got := strings.Join(Categories(), ",")
	if got != "approval,cache,stream" {
		t.Errorf("Categories() = %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestInitJSONAndPayloadTruncation(t *testing.T) {
	orig := slog.Default()
	defer slog.SetDefault(orig)
	t.Setenv("UNIGEN_DEBUG", "")
	t.Setenv("UNIGEN_LOG_LEVEL", "")
	withCategories(t, "")

	var buf bytes.Buffer
	Init(Options{Categories: "providers", Level: "DEBUG", Format: "json", Output: &buf})

	Payload("providers", "response body", bytes.Repeat([]byte("x"), 600))
	Payload("cache", "should not appear", []byte("y"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	body, _ := rec["body"].(string)
	if len(body) != 515 || !strings.HasSuffix(body, "...") {
		t.Errorf("body length = %d, want truncated to 512+...", len(body))
	}
	if rec["debug"] != "providers" {
		t.Errorf("debug attr = %v", rec["debug"])
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	orig := slog.Default()
	defer slog.SetDefault(orig)
	withCategories(t, "")
	t.Setenv("UNIGEN_DEBUG", "approval")

	Init(Options{Categories: "providers", Output: &bytes.Buffer{}})
	if !Enabled("approval") || Enabled("providers") {
		t.Errorf("env should win over config, got %v", Categories())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
}
