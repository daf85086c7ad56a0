package transport

import (
	"context"
	"log/slog"
	"time"
)

// Logging logs one line per generation call with its outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, call *GenerateCall, w ResponseWriter) error {
			start := time.Now()
			err := next.Generate(ctx, call, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("provider", call.Provider),
				slog.String("model", call.Request.Model),
				slog.Bool("stream", call.Request.Stream),
				slog.Duration("duration", time.Since(start)),
			}
			if call.TaskID != "" {
				attrs = append(attrs, slog.String("task_id", call.TaskID))
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "generate failed", attrs...)
				return err
			}
			logger.LogAttrs(ctx, slog.LevelInfo, "generate completed", attrs...)
			return nil
		})
	}
}
