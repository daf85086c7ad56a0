package task

import (
	"context"
	"maps"
	"slices"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/engine"
	"github.com/rhuss/unigen/pkg/stream"
)

// GenerateBuilder describes a generation.
type GenerateBuilder struct {
	runner   Runner
	provider string
	taskID   string
	req      api.GenerateRequest
}

// Generate starts a generation for provider.
func Generate(r Runner, provider string) GenerateBuilder {
	return GenerateBuilder{runner: r, provider: provider}
}

// Provider switches the target provider.
func (b GenerateBuilder) Provider(name string) GenerateBuilder {
	b.provider = name
	return b
}

func (b GenerateBuilder) Model(model string) GenerateBuilder {
	b.req.Model = model
	return b
}

func (b GenerateBuilder) System(text string) GenerateBuilder {
	b.req.System = text
	return b
}

func (b GenerateBuilder) Prompt(text string) GenerateBuilder {
	b.req.Prompt = text
	return b
}

// Message appends a conversation turn.
func (b GenerateBuilder) Message(role, content string) GenerateBuilder {
	b.req.Messages = append(slices.Clip(b.req.Messages), api.Message{Role: role, Content: content})
	return b
}

// Voice selects the voice of a speech generation.
func (b GenerateBuilder) Voice(voice string) GenerateBuilder {
	b.req.Voice = voice
	return b
}

func (b GenerateBuilder) Temperature(t float64) GenerateBuilder {
	b.req.Temperature = &t
	return b
}

func (b GenerateBuilder) TopP(p float64) GenerateBuilder {
	b.req.TopP = &p
	return b
}

func (b GenerateBuilder) MaxTokens(n int) GenerateBuilder {
	b.req.MaxTokens = &n
	return b
}

// Stop adds stop sequences.
func (b GenerateBuilder) Stop(seq ...string) GenerateBuilder {
	b.req.Stop = append(slices.Clip(b.req.Stop), seq...)
	return b
}

// Tool offers a tool to the model. Calls to tools no engine executor
// handles are returned in the result.
func (b GenerateBuilder) Tool(def api.ToolDefinition) GenerateBuilder {
	b.req.Tools = append(slices.Clip(b.req.Tools), def)
	return b
}

// Set passes a provider-specific option through unchanged.
func (b GenerateBuilder) Set(option string, value any) GenerateBuilder {
	opts := maps.Clone(b.req.Options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts[option] = value
	b.req.Options = opts
	return b
}

// TaskID names the task Stream runs, so it can be cancelled through the
// engine. Empty assigns a fresh id.
func (b GenerateBuilder) TaskID(id string) GenerateBuilder {
	b.taskID = id
	return b
}

// Request returns a copy of the request the builder describes.
func (b GenerateBuilder) Request() *api.GenerateRequest {
	r := b.req
	r.Messages = slices.Clone(b.req.Messages)
	r.Stop = slices.Clone(b.req.Stop)
	r.Tools = slices.Clone(b.req.Tools)
	r.Options = maps.Clone(b.req.Options)
	return &r
}

// Execute runs the generation and waits for the result.
func (b GenerateBuilder) Execute(ctx context.Context) (*api.GenerateResult, error) {
	return b.runner.Generate(ctx, b.provider, b.Request())
}

// Stream runs the generation as a streamed task, delivering events to
// listeners as they arrive. The collected result is returned even when
// the stream was cancelled or failed part way.
func (b GenerateBuilder) Stream(ctx context.Context, listeners ...stream.Listener) (*api.GenerateResult, stream.Summary, error) {
	return b.runner.RunTask(ctx, engine.Task{
		ID:       b.taskID,
		Provider: b.provider,
		Request:  b.Request(),
	}, listeners...)
}

func (b GenerateBuilder) run(ctx context.Context, _ any) (any, error) {
	return b.Execute(ctx)
}
