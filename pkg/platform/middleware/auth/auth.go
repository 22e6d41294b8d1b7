package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"veto/pkg/requestcontext"
)

// ActorValidator validates a bearer token and returns the caller it names.
type ActorValidator interface {
	ValidateToken(tokenString string) (*ActorClaims, error)
}

// ActorClaims is the subset of token claims the audit log needs.
type ActorClaims struct {
	ActorID string
	TokenID string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// OptionalActor attributes requests to an actor when they carry a bearer token.
// Requests without an Authorization header pass through anonymously; a present
// but malformed or invalid token is rejected with 401. A nil validator disables
// the middleware.
func OptionalActor(validator ActorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - malformed authorization header",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActorID(ctx, claims.ActorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
