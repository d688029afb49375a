package callerctx

import (
	"context"
)

type contextKey struct{}

// NewContext returns context carrying the authenticated caller service name
func NewContext(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, contextKey{}, service)
}

// FromContext extracts the caller service name if the request was authenticated
func FromContext(ctx context.Context) (string, bool) {
	service, ok := ctx.Value(contextKey{}).(string)
	return service, ok
}
