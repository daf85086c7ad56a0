package transport

import (
	"context"
	"errors"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/engine"
	"github.com/rhuss/unigen/pkg/stream"
)

var (
	_ Catalog = (*engine.Engine)(nil)
	_ Tasks   = (*engine.Engine)(nil)
)

// NewEngineGenerator adapts e to Generator. Streaming calls run as engine
// tasks so they can be cancelled by id. A task cancelled while the client
// is still connected ends with a cancelled status event.
func NewEngineGenerator(e *engine.Engine) Generator {
	return GeneratorFunc(func(ctx context.Context, call *GenerateCall, w ResponseWriter) error {
		if !call.Request.Stream {
			res, err := e.Generate(ctx, call.Provider, call.Request)
			if err != nil {
				return err
			}
			return w.WriteResult(ctx, res)
		}

		task := engine.Task{ID: call.TaskID, Provider: call.Provider, Request: call.Request}
		_, sum, err := e.RunTask(ctx, task, stream.Sink(w))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			// Cancelled through Tasks.CancelTask.
			ev := api.StatusEvent(api.StatusCancelled, "cancelled by request")
			ev.TaskID = call.TaskID
			ev.Sequence = sum.Events
			return w.WriteEvent(ctx, ev)
		case sum.Err != nil:
			// Already delivered as a terminal error event.
			return nil
		}
		return err
	})
}
