package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scorpius-gateway/internal/platform/config"
)

// NewRouter assembles the gateway's route tree and middleware chain.
func NewRouter(h *Handler, cfg config.Server, jwtTTL time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(h.logger))
	r.Use(RequestID)
	r.Use(ClientMetadata)
	r.Use(AllowedHosts(cfg.AllowedHosts))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.DevTokens {
		r.Post("/auth/token", h.handleMintToken(jwtTTL))
	}

	// chi would answer 405 itself for unregistered methods; the pipeline
	// owns that decision so the rejection is rate limited and audited like
	// any other request.
	r.HandleFunc("/api/{service}/*", h.handleProxy)
	r.HandleFunc("/api/{service}", h.handleProxy)

	return r
}
