package grpcx

import "context"

// RequestIDMetadataKey is the metadata key carrying the request id.
// gRPC metadata keys are conventionally lowercase.
const RequestIDMetadataKey = "x-request-id"

type requestIDKey struct{}

// WithRequestID stores a request id for later gRPC fanout. An empty id
// leaves the context unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
