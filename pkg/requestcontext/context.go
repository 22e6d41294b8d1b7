// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and the audit recorder read them. The package
// has no net/http dependency so core packages can import it freely.
//
// Usage in services (read values):
//
//	actor := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7", "curl/8.4.0")
package requestcontext

import (
	"context"
	"time"
)

type (
	actorIDKey     struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// ActorID returns the caller identity recorded on audit events, or "" when the
// request was anonymous.
func ActorID(ctx context.Context) string {
	if actor, ok := ctx.Value(actorIDKey{}).(string); ok {
		return actor
	}
	return ""
}

// WithActorID injects the caller identity into the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the summarised User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// TimePrecision is the resolution of every timestamp a request persists. It
// matches Postgres TIMESTAMPTZ and the canonical receipt form.
const TimePrecision = time.Microsecond

// Now retrieves the request-scoped time from context, in UTC at
// TimePrecision. Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	t, ok := ctx.Value(requestTimeKey{}).(time.Time)
	if !ok {
		t = time.Now()
	}
	return t.UTC().Truncate(TimePrecision)
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
