package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// RequestID assigns a request id when the context does not already carry
// one from the X-Request-ID header.
func RequestID() Middleware {
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, call *GenerateCall, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Generate(ctx, call, w)
		})
	}
}

// NewRequestID returns 32 random hex characters.
func NewRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
