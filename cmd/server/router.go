package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	jwttoken "veto/internal/jwt_token"
	"veto/internal/pointer/handler"
	"veto/internal/platform/config"
	"veto/internal/platform/metrics"
	"veto/pkg/platform/httputil"
	"veto/pkg/platform/middleware/admin"
	authmw "veto/pkg/platform/middleware/auth"
	"veto/pkg/platform/middleware/logging"
	"veto/pkg/platform/middleware/metadata"
	"veto/pkg/platform/middleware/request"
	"veto/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

type healthCheck func(ctx context.Context) error

type routerConfig struct {
	server         config.Server
	logger         *slog.Logger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	health         map[string]healthCheck
}

func newRouter(cfg routerConfig, h *handler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(logging.Recovery(cfg.logger))
	r.Use(logging.Logger(cfg.logger))
	r.Use(logging.Latency(cfg.metrics))

	r.Get("/health", healthHandler(cfg.health))
	r.Handle("/metrics", cfg.metricsHandler)

	var validator authmw.ActorValidator
	if cfg.server.JWTSigningKey != "" {
		validator = jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.server.JWTSigningKey, cfg.server.JWTIssuer))
	}
	r.Group(func(r chi.Router) {
		r.Use(authmw.OptionalActor(validator, cfg.logger))
		h.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.server.AdminToken, cfg.logger))
		h.RegisterAdmin(r)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.server.CORSAllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", request.HeaderRequestID, admin.HeaderAdminToken},
		ExposedHeaders:   []string{request.HeaderRequestID},
	}).Handler(r)
}

// healthHandler reports 503 when any dependency check fails.
func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		body := map[string]any{"status": "ok", "dependencies": deps}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		httputil.WriteJSON(w, status, body)
	}
}
