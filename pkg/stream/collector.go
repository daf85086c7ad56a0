package stream

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
)

// Collector is a Listener that accumulates the content of a stream:
// text deltas, tool calls, audio bytes and the final status. It keeps
// whatever arrived even when the stream is cancelled part way.
type Collector struct {
	mu          sync.Mutex
	text        strings.Builder
	calls       []api.ToolCall
	callIndex   map[string]int
	executed    map[string]bool
	audio       bytes.Buffer
	audioFormat string
	status      string
	err         *api.APIError
	events      int
}

var _ Listener = (*Collector)(nil)

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{callIndex: make(map[string]int), executed: make(map[string]bool)}
}

// OnEvent implements Listener.
func (c *Collector) OnEvent(_ context.Context, ev api.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events++

	switch ev.Kind {
	case api.EventTextDelta:
		c.text.WriteString(ev.Delta)
	case api.EventToolCallStarted, api.EventToolCallCompleted:
		if ev.ToolCall != nil {
			c.upsertCall(*ev.ToolCall)
		}
	case api.EventAudio:
		if ev.Audio == nil {
			break
		}
		if ev.Audio.Format != "" {
			c.audioFormat = ev.Audio.Format
		}
		if ev.Audio.Phase == api.AudioChunk {
			c.audio.Write(ev.Audio.Data)
		}
	case api.EventStatusChanged:
		if ev.Status == api.StatusToolResult {
			c.executed[ev.Detail] = true
			break
		}
		c.status = ev.Status
	case api.EventError:
		c.status = api.StatusFailed
		c.err = ev.Error
	}
	return nil
}

// upsertCall records a call the first time it is seen and replaces it
// when the completed version arrives. Calls without an id are appended.
func (c *Collector) upsertCall(call api.ToolCall) {
	if call.ID == "" {
		c.calls = append(c.calls, call)
		return
	}
	if i, ok := c.callIndex[call.ID]; ok {
		c.calls[i] = call
		return
	}
	c.callIndex[call.ID] = len(c.calls)
	c.calls = append(c.calls, call)
}

// Text returns the concatenated text deltas.
func (c *Collector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

// ToolCalls returns the tool calls seen, in order of first appearance.
func (c *Collector) ToolCalls() []api.ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.ToolCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// Audio returns the collected audio bytes and their format.
func (c *Collector) Audio() ([]byte, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.audio.Bytes()), c.audioFormat
}

// Status returns the last status seen.
func (c *Collector) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the payload of an error event, if one arrived.
func (c *Collector) Err() *api.APIError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Events returns the number of events seen.
func (c *Collector) Events() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Result assembles what was collected into a GenerateResult.
func (c *Collector) Result(provider, model string) *api.GenerateResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := &api.GenerateResult{
		Provider:     provider,
		Model:        model,
		Text:         c.text.String(),
		FinishReason: c.status,
		AudioFormat:  c.audioFormat,
	}
	// Calls executed between turns were answered inside the stream.
	for _, call := range c.calls {
		if call.ID == "" || !c.executed[call.ID] {
			res.ToolCalls = append(res.ToolCalls, call)
		}
	}
	if len(res.ToolCalls) > 0 {
		res.FinishReason = "tool_calls"
	}
	if c.audio.Len() > 0 {
		res.Audio = bytes.Clone(c.audio.Bytes())
	}
	return res
}
