// Command mcp-test-server runs a small MCP server for exercising the
// gateway's MCP executor and approval gate. It offers "get_time", "echo"
// and the destructive "delete_record", which is meant to be configured
// with require_approval so every call waits for a decision.
//
// Configuration:
//
//	PORT - Listen port (default: 8080)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// records is the state delete_record removes from.
type records struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (r *records) delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.keys[key] {
		return false
	}
	delete(r.keys, key)
	return true
}

func (r *records) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	store := &records{keys: map[string]bool{"alpha": true, "beta": true, "gamma": true}}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "unigen-test-mcp", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current UTC time",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		return text("Current time: " + time.Now().UTC().Format(time.RFC3339)), struct{}{}, nil
	})

	type EchoInput struct {
		Message string `json:"message" jsonschema:"the message to echo back"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echoes the provided message back",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in EchoInput) (*mcp.CallToolResult, struct{}, error) {
		return text("Echo: " + in.Message), struct{}{}, nil
	})

	type DeleteInput struct {
		Key string `json:"key" jsonschema:"the record to delete"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_record",
		Description: "Permanently deletes a record. Destructive.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: ptr(true)},
	}, func(_ context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, struct{}, error) {
		if !store.delete(in.Key) {
			res := text(fmt.Sprintf("no record %q", in.Key))
			res.IsError = true
			return res, struct{}{}, nil
		}
		slog.Info("record deleted", "key", in.Key)
		return text(fmt.Sprintf("deleted %q; remaining: %s", in.Key, strings.Join(store.list(), ", "))), struct{}{}, nil
	})

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})

	slog.Info("MCP test server starting", "port", port)
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("MCP test server failed", "error", err)
		os.Exit(1)
	}
}

func ptr[T any](v T) *T { return &v }
