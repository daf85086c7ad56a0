package transport

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/unigen/pkg/api"
)

// recordingWriter is a ResponseWriter that keeps what it was given.
type recordingWriter struct {
	mu     sync.Mutex
	events []api.StreamEvent
	result *api.GenerateResult
}

func (w *recordingWriter) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	return nil
}

func (w *recordingWriter) WriteResult(_ context.Context, res *api.GenerateResult) error {
	w.result = res
	return nil
}

func (w *recordingWriter) Flush() error { return nil }

func (w *recordingWriter) Events() []api.StreamEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]api.StreamEvent(nil), w.events...)
}

func testCall() *GenerateCall {
	return &GenerateCall{Provider: "local", Request: &api.GenerateRequest{Model: "m", Prompt: "hi"}}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Generator) Generator {
			return GeneratorFunc(func(ctx context.Context, call *GenerateCall, w ResponseWriter) error {
				order = append(order, name+">")
				err := next.Generate(ctx, call, w)
				order = append(order, "<"+name)
				return err
			})
		}
	}
	g := Chain(mw("a"), mw("b"))(GeneratorFunc(func(context.Context, *GenerateCall, ResponseWriter) error {
		order = append(order, "handler")
		return nil
	}))

	_ = g.Generate(context.Background(), testCall(), &recordingWriter{})
	if got := strings.Join(order, " "); got != "a> b> handler <b <a" {
		t.Errorf("order = %s", got)
	}
}

func TestRecovery(t *testing.T) {
	g := Recovery()(GeneratorFunc(func(context.Context, *GenerateCall, ResponseWriter) error {
		panic("kaboom")
	}))
	err := g.Generate(context.Background(), testCall(), &recordingWriter{})
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeServerError || !strings.Contains(apiErr.Message, "kaboom") {
		t.Errorf("err = %v", err)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	g := RequestID()(GeneratorFunc(func(ctx context.Context, _ *GenerateCall, _ ResponseWriter) error {
		seen = RequestIDFromContext(ctx)
		return nil
	}))

	_ = g.Generate(context.Background(), testCall(), &recordingWriter{})
	if len(seen) != 32 {
		t.Errorf("generated id = %q", seen)
	}

	ctx := ContextWithRequestID(context.Background(), "client-id")
	_ = g.Generate(ctx, testCall(), &recordingWriter{})
	if seen != "client-id" {
		t.Errorf("propagated id = %q", seen)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ok := Logging(logger)(GeneratorFunc(func(context.Context, *GenerateCall, ResponseWriter) error { return nil }))
	fail := Logging(logger)(GeneratorFunc(func(context.Context, *GenerateCall, ResponseWriter) error {
		return api.NewTransportError("local", "generate", 503, "down")
	}))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	_ = ok.Generate(ctx, testCall(), &recordingWriter{})
	if err := fail.Generate(ctx, testCall(), &recordingWriter{}); err == nil {
		t.Error("error was swallowed")
	}

	out := buf.String()
	for _, want := range []string{"generate completed", "generate failed", "request_id=req-1", "provider=local", "level=ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
