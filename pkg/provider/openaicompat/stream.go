package openaicompat

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
)

// toolCallBuffer tracks incremental tool call argument assembly across
// chunks for a single tool call index.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// chunkTranslator turns Chat Completions chunks into stream events. It
// keeps per-index tool call buffers between chunks.
type chunkTranslator struct {
	toolCalls map[int]*toolCallBuffer
}

// ParseStream returns an httpclient.ParseFunc for Chat Completions SSE.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}
//
//	data: [DONE]
//
// Malformed chunks are logged and skipped.
func ParseStream(providerName string) httpclient.ParseFunc {
	return func(ctx context.Context, body io.Reader, em *httpclient.Emitter) error {
		tr := &chunkTranslator{toolCalls: make(map[int]*toolCallBuffer)}
		return httpclient.ReadSSE(ctx, body, func(ev httpclient.SSEEvent) error {
			var chunk ChatCompletionChunk
			if !httpclient.DecodeChunk(providerName, []byte(ev.Data), &chunk) {
				return nil
			}
			for _, out := range tr.translate(&chunk) {
				if !em.Emit(out) {
					return ctx.Err()
				}
			}
			return nil
		})
	}
}

func (tr *chunkTranslator) translate(chunk *ChatCompletionChunk) []api.StreamEvent {
	if len(chunk.Choices) == 0 {
		// Usage-only trailer sent with stream_options.include_usage.
		return nil
	}

	choice := chunk.Choices[0]
	var out []api.StreamEvent

	for _, tc := range choice.Delta.ToolCalls {
		buf, exists := tr.toolCalls[tc.Index]
		if !exists {
			id := tc.ID
			if id == "" {
				id = api.NewCallID()
			}
			buf = &toolCallBuffer{id: id, name: tc.Function.Name}
			tr.toolCalls[tc.Index] = buf
			out = append(out, api.ToolCallStartedEvent(api.ToolCall{ID: buf.id, Name: buf.name}))
		}
		buf.args.WriteString(tc.Function.Arguments)
	}

	if c := choice.Delta.Content; c != nil && *c != "" {
		out = append(out, api.TextDeltaEvent(*c))
	}

	if choice.FinishReason != nil {
		out = append(out, tr.flush()...)
	}
	return out
}

// flush completes buffered tool calls in index order.
func (tr *chunkTranslator) flush() []api.StreamEvent {
	indexes := make([]int, 0, len(tr.toolCalls))
	for idx := range tr.toolCalls {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	out := make([]api.StreamEvent, 0, len(indexes))
	for _, idx := range indexes {
		buf := tr.toolCalls[idx]
		out = append(out, api.ToolCallCompletedEvent(api.ToolCall{
			ID:        buf.id,
			Name:      buf.name,
			Arguments: httpclient.RepairArguments(buf.args.String()),
		}))
		delete(tr.toolCalls, idx)
	}
	return out
}
