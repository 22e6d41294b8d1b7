package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"veto/pkg/requestcontext"
)

// HeaderAdminToken carries the operator token for administrative routes.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards administrative routes. An empty expected token
// disables those routes entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			w.Header().Set("Content-Type", "application/json")

			if expectedToken == "" {
				logger.WarnContext(ctx, "admin route called but no admin token configured",
					"request_id", requestID,
				)
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin routes are disabled"}`))
				return
			}

			token := r.Header.Get(HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestID,
				)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
