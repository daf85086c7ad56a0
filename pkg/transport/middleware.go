package transport

import "context"

// Middleware wraps a Generator to add cross-cutting behavior.
type Middleware func(Generator) Generator

// Chain composes middleware. Chain(a, b, c) produces a(b(c(g))), so the
// first middleware runs first on the way in.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Generator) Generator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID returns ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
