package httpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
)

// Emitter sends numbered events on a stream channel and stops as soon as
// the consumer's context is cancelled.
type Emitter struct {
	ctx context.Context
	ch  chan<- api.StreamEvent
	seq int
}

// NewEmitter creates an Emitter writing to ch.
func NewEmitter(ctx context.Context, ch chan<- api.StreamEvent) *Emitter {
	return &Emitter{ctx: ctx, ch: ch}
}

// Emit assigns the next sequence number and sends ev. It returns false
// once the context is done; the caller must stop producing.
func (e *Emitter) Emit(ev api.StreamEvent) bool {
	if e.ctx.Err() != nil {
		return false
	}
	e.seq++
	ev.Sequence = e.seq
	select {
	case e.ch <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// ParseFunc reads a provider stream body and emits events. It returns nil
// when the provider signalled the end of the stream.
type ParseFunc func(ctx context.Context, body io.Reader, em *Emitter) error

// Pump runs parse over resp.Body in a goroutine and returns the event
// channel. It emits status started first, then the parsed events, then
// status completed. A read failure is emitted as an error event. The
// channel is closed and the body released when parsing ends or ctx is
// cancelled.
func Pump(ctx context.Context, provider, operation string, resp *http.Response, parse ParseFunc) <-chan api.StreamEvent {
	ch := make(chan api.StreamEvent, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		em := NewEmitter(ctx, ch)
		if !em.Emit(api.StatusEvent(api.StatusStarted, "")) {
			return
		}
		err := parse(ctx, resp.Body, em)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			apiErr, ok := api.AsAPIError(err)
			if !ok {
				apiErr = api.NewTransportError(provider, operation, 0, "stream read error: "+err.Error())
			}
			em.Emit(api.ErrorEvent(apiErr.WithContext(provider, operation)))
			return
		}
		em.Emit(api.StatusEvent(api.StatusCompleted, ""))
	}()
	return ch
}

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Event string
	Data  string
}

// errDone stops ReadSSE when the [DONE] sentinel is seen.
var errDone = errors.New("done")

// ReadSSE reads server-sent events from r and calls fn for each complete
// event. Multi-line data fields are joined with "\n". A "data: [DONE]"
// payload ends the stream. Context cancellation is checked between lines.
func ReadSSE(ctx context.Context, r io.Reader, fn func(SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		event string
		data  []string
	)
	flush := func() error {
		if len(data) == 0 {
			event = ""
			return nil
		}
		payload := strings.Join(data, "\n")
		ev := SSEEvent{Event: event, Data: payload}
		event, data = "", data[:0]
		if payload == "[DONE]" {
			return errDone
		}
		return fn(ev)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				if errors.Is(err, errDone) {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil && !errors.Is(err, errDone) {
		return err
	}
	return nil
}

// ReadNDJSON calls fn for each non-empty line of a newline-delimited JSON
// stream. Context cancellation is checked between lines.
func ReadNDJSON(ctx context.Context, r io.Reader, fn func([]byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// DecodeChunk unmarshals one stream chunk. Malformed chunks are logged
// and reported as false so the caller can skip them.
func DecodeChunk(provider string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("skipping malformed stream chunk",
			"provider", provider,
			"error", err.Error(),
			"data", debug.Truncate(string(data), 200),
		)
		return false
	}
	return true
}

// RepairArguments returns tool-call arguments as valid JSON. Models
// occasionally emit truncated or loosely quoted objects; those are
// repaired, and an empty string becomes "{}". Unrepairable input is
// returned unchanged.
func RepairArguments(args string) string {
	if strings.TrimSpace(args) == "" {
		return "{}"
	}
	if json.Valid([]byte(args)) {
		return args
	}
	repaired, err := jsonrepair.JSONRepair(args)
	if err != nil {
		slog.Warn("tool call arguments are not valid JSON", "error", err.Error())
		return args
	}
	return repaired
}
