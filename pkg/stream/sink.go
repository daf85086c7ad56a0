package stream

import (
	"context"

	"github.com/rhuss/unigen/pkg/api"
)

// EventWriter is the transport side of a stream, such as an SSE
// response writer.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev api.StreamEvent) error
}

// Sink returns a Listener that forwards every event to w. A write error
// is reported as a listener failure like any other.
func Sink(w EventWriter) Listener {
	return ListenerFunc(func(ctx context.Context, ev api.StreamEvent) error {
		return w.WriteEvent(ctx, ev)
	})
}

// ChannelWriter is an EventWriter that sends events on a channel. Sends
// block until received or ctx is done.
type ChannelWriter chan<- api.StreamEvent

// WriteEvent implements EventWriter.
func (c ChannelWriter) WriteEvent(ctx context.Context, ev api.StreamEvent) error {
	select {
	case c <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tag returns a Listener that stamps the task id and a dispatch-order
// sequence onto each event before passing it to next. Sequences start at
// zero. The returned listener is not safe for concurrent streams.
func Tag(taskID string, next Listener) Listener {
	seq := 0
	return ListenerFunc(func(ctx context.Context, ev api.StreamEvent) error {
		ev.TaskID = taskID
		ev.Sequence = seq
		seq++
		return next.OnEvent(ctx, ev)
	})
}
