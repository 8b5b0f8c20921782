package shared

import (
	"context"

	"github.com/google/uuid"

	"github.com/phrazzld/match-gateway/internal/service/auth"
)

// ContextKey is the type of request context keys set by the middleware.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context.
	TraceIDKey ContextKey = "traceID"

	// ClaimsKey is the key for the verified token claims.
	ClaimsKey ContextKey = "claims"

	// CurrentRegionKey is the key for the caller's declared region.
	CurrentRegionKey ContextKey = "currentRegion"
)

// SetTraceID adds a fresh trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, uuid.NewString())
}

// WithTraceID adds id as the trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// WithClaims stores verified claims.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}

// ClaimsFrom returns the claims stored by the auth middleware.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return c, ok && c != nil
}

// WithCurrentRegion stores the caller's declared region.
func WithCurrentRegion(ctx context.Context, region string) context.Context {
	return context.WithValue(ctx, CurrentRegionKey, region)
}

// CurrentRegion returns the caller's declared region, or "".
func CurrentRegion(ctx context.Context) string {
	r, _ := ctx.Value(CurrentRegionKey).(string)
	return r
}
