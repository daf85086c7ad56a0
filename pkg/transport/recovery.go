package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/unigen/pkg/api"
)

// Recovery converts a panic in the wrapped Generator into a server error.
func Recovery() Middleware {
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, call *GenerateCall, w ResponseWriter) (err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("generator panic", "panic", r, "provider", call.Provider, "stack", string(debug.Stack()))
					err = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Generate(ctx, call, w)
		})
	}
}
