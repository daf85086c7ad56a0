// Package debug provides category-based debug logging for unigen.
//
// Two orthogonal controls:
//   - Categories select what to debug: UNIGEN_DEBUG env or config
//   - Levels select how much detail: UNIGEN_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("providers", "request", "method", "GET", "url", url)
//	if debug.Enabled("cache") { /* expensive formatting */ }
//
// Categories: providers, query, engine, stream, approval, cache, storage,
// mcp, auth, http, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// LevelTrace is below slog.LevelDebug. At TRACE, provider payloads are
// logged untruncated.
const LevelTrace = slog.LevelDebug - 4

// enabled holds the active category set. It is swapped atomically so
// Init may run while other goroutines are logging.
var enabled atomic.Pointer[map[string]bool]

func init() {
	setCategories(parseCategories(os.Getenv("UNIGEN_DEBUG")))
}

// Options configures logging at startup.
type Options struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// Init installs the default slog logger and the debug categories.
// Environment variables take precedence over opts.
func Init(opts Options) {
	cats := os.Getenv("UNIGEN_DEBUG")
	if cats == "" {
		cats = opts.Categories
	}
	setCategories(parseCategories(cats))

	level := os.Getenv("UNIGEN_LOG_LEVEL")
	if level == "" {
		level = opts.Level
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *enabled.Load()
	return m["all"] || m[category]
}

// Log emits a debug message for the given category. It is a no-op when
// the category is disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// Payload logs a request or response body. Bodies are truncated to 512
// bytes unless TRACE is active.
func Payload(category, label string, body []byte) {
	if !Enabled(category) {
		return
	}
	text := string(body)
	if !TraceIsEnabled(category) {
		text = Truncate(text, 512)
	}
	slog.Debug(label, "debug", category, "bytes", len(body), "body", text)
}

// Raw writes plain text to stderr without slog formatting, only at TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level string to a slog.Level. Unknown values map
// to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	m := *enabled.Load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Truncate returns s cut to maxLen bytes with "..." appended when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func setCategories(m map[string]bool) {
	enabled.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
