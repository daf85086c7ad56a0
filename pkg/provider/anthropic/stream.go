package anthropic

import (
	"context"
	"io"
	"strings"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/httpclient"
)

type toolBlock struct {
	call api.ToolCall
	args strings.Builder
}

// parseStream translates the Messages SSE lifecycle:
//
//	message_start, content_block_start, content_block_delta...,
//	content_block_stop, message_delta, message_stop
//
// tool_use blocks emit ToolCallStarted on start and ToolCallCompleted on
// stop with the accumulated input_json_delta fragments.
func parseStream(providerName string) httpclient.ParseFunc {
	return func(ctx context.Context, body io.Reader, em *httpclient.Emitter) error {
		blocks := make(map[int]*toolBlock)
		return httpclient.ReadSSE(ctx, body, func(sse httpclient.SSEEvent) error {
			var ev streamEvent
			if !httpclient.DecodeChunk(providerName, []byte(sse.Data), &ev) {
				return nil
			}

			var out *api.StreamEvent
			switch ev.Type {
			case "content_block_start":
				if ev.ContentBlock == nil || ev.ContentBlock.Type != "tool_use" {
					return nil
				}
				b := &toolBlock{call: api.ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}}
				if b.call.ID == "" {
					b.call.ID = api.NewCallID()
				}
				blocks[ev.Index] = b
				e := api.ToolCallStartedEvent(b.call)
				out = &e

			case "content_block_delta":
				if ev.Delta == nil {
					return nil
				}
				switch ev.Delta.Type {
				case "text_delta":
					if ev.Delta.Text != "" {
						e := api.TextDeltaEvent(ev.Delta.Text)
						out = &e
					}
				case "input_json_delta":
					if b, ok := blocks[ev.Index]; ok {
						b.args.WriteString(ev.Delta.PartialJSON)
					}
				}

			case "content_block_stop":
				b, ok := blocks[ev.Index]
				if !ok {
					return nil
				}
				delete(blocks, ev.Index)
				b.call.Arguments = httpclient.RepairArguments(b.args.String())
				e := api.ToolCallCompletedEvent(b.call)
				out = &e

			case "error":
				msg := "stream error"
				if ev.Error != nil {
					msg = ev.Error.Type + ": " + ev.Error.Message
				}
				return api.NewTransportError(providerName, string(provider.OpStream), 0, msg)
			}

			if out != nil && !em.Emit(*out) {
				return ctx.Err()
			}
			return nil
		})
	}
}
