// Package requesttime captures one "now" per HTTP request so that pointer
// transitions, receipts and audit events written by the request share a timestamp.
package requesttime

import (
	"net/http"
	"time"

	"veto/pkg/requestcontext"
)

// Middleware stores the request start time (UTC) in the context.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an injectable clock.
func MiddlewareWithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
