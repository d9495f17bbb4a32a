package event

import "context"

type correlationKey struct{}

// ContextWithCorrelationID returns a context carrying the correlation ID for
// events dispatched while handling the caller's operation.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation ID carried by the context,
// or the empty string when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}
