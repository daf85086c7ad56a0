// Command demo walks through the fluent task API: catalog paging, a tool
// loop, streaming, a sequence and the error taxonomy.
//
// It uses the providers from the unigen configuration when any are set.
// Otherwise it starts an in-process mock backend and points OpenAI,
// Anthropic and ElevenLabs adapters at it, so the demo runs offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/config"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/gateway"
	"github.com/rhuss/unigen/pkg/mockbackend"
	"github.com/rhuss/unigen/pkg/stream"
	"github.com/rhuss/unigen/pkg/task"
)

func main() {
	debug.Init(debug.Options{Level: "WARN"})
	if err := run(context.Background()); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if len(cfg.Providers) == 0 {
		stop, err := useMockBackend(cfg)
		if err != nil {
			return err
		}
		defer stop()
	}

	gw, err := gateway.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer gw.Close()
	eng := gw.Engine

	chat, speech := "openai", "elevenlabs"
	fmt.Println("=== unigen task demo ===")

	fmt.Println("\n[1] Models, one per page:")
	pages := 0
	for page, err := range task.ListModels(eng, chat).Limit(1).Pages(ctx) {
		if err != nil {
			return err
		}
		pages++
		for _, m := range page.Data {
			fmt.Printf("    page %d: %s (owned by %s)\n", pages, m.ID, m.OwnedBy)
		}
	}

	fmt.Println("\n[2] Generate with the tool loop:")
	res, err := task.Generate(eng, chat).
		Model("mock-model").
		Prompt("ping").
		Execute(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("    %q (finish: %s)\n", res.Text, res.FinishReason)

	fmt.Println("\n[3] Stream, tool turn included:")
	fmt.Print("    ")
	printer := stream.ListenerFunc(func(_ context.Context, ev api.StreamEvent) error {
		if ev.Kind == api.EventTextDelta {
			fmt.Print(ev.Delta)
		}
		return nil
	})
	_, sum, err := task.Generate(eng, chat).
		Model("mock-model").
		System("You are a pirate.").
		Prompt("Say hello").
		Stream(ctx, printer)
	if err != nil {
		return err
	}
	fmt.Printf("\n    %d events, status %s\n", sum.Events, sum.Status)

	fmt.Println("\n[4] Sequence: first voice, then speech with it:")
	results, err := task.Sequence(
		task.ListVoices(eng, speech).Limit(1),
		task.StepFunc(func(ctx context.Context, prev any) (any, error) {
			page, ok := prev.(api.Page[api.VoiceData])
			if !ok || len(page.Data) == 0 {
				return nil, errors.New("no voice available")
			}
			return task.Generate(eng, speech).Voice(page.Data[0].ID).Prompt("Hello there").Execute(ctx)
		}),
	).Execute(ctx)
	if err != nil {
		return err
	}
	if audio, ok := results[1].(*api.GenerateResult); ok {
		fmt.Printf("    %d bytes of %s audio\n", len(audio.Audio), audio.AudioFormat)
	}

	fmt.Println("\n[5] Error taxonomy:")
	_, err = task.ListFiles(eng, speech).Execute(ctx)
	printError("files on a speech provider", err)
	_, err = task.GetModel(eng, chat, "no-such-model").Execute(ctx)
	printError("unknown model", err)
	_, err = task.Generate(eng, "nowhere").Prompt("hi").Execute(ctx)
	printError("unknown provider", err)

	fmt.Println("\n=== demo complete ===")
	return nil
}

func printError(label string, err error) {
	if apiErr, ok := api.AsAPIError(err); ok {
		fmt.Printf("    %-28s type=%s code=%s status=%d\n", label+":", apiErr.Type, apiErr.Code, apiErr.Status)
		return
	}
	fmt.Printf("    %-28s %v\n", label+":", err)
}

// useMockBackend serves the mock dialects on a loopback port and adds
// providers for them to cfg.
func useMockBackend(cfg *config.Config) (func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mockbackend.New().Handler()}
	go func() { _ = srv.Serve(ln) }()

	base := "http://" + ln.Addr().String()
	cfg.Providers = []config.ProviderConfig{
		{Type: "openai", BaseURL: base + mockbackend.PrefixOpenAI, APIKey: "sk-mock"},
		{Type: "anthropic", BaseURL: base + mockbackend.PrefixAnthropic, APIKey: "mock"},
		{Type: "elevenlabs", BaseURL: base + mockbackend.PrefixElevenLabs, APIKey: "mock"},
	}
	cfg.Engine.AllowedTools = []string{"echo"}
	cfg.Approval.Responder = "auto_approve"
	fmt.Println("no providers configured, using the in-process mock backend at", base)
	return func() { _ = srv.Close() }, nil
}
