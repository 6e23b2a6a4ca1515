package sessionfetch

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader carries a correlation id on every request sent by [Client.Fetch].
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// WithRequestID attaches a correlation id to ctx. Fetch sends it in
// [RequestIDHeader]; without one a random id is generated per request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if id, _ := ctx.Value(requestIDContextKey{}).(string); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
