package httpapi

import (
	"net/http"

	"enrichment-svc/pkg/config"
	"enrichment-svc/pkg/metrics"
	"enrichment-svc/pkg/ratelimit"
	"enrichment-svc/pkg/telemetry"
	"enrichment-svc/services/enrichment-svc/internal/middleware"
)

// NewRouter builds the full JSON API handler: routing plus the
// CORS -> RequestID -> Tracing -> Logging -> Metrics -> RateLimit
// middleware chain, outermost first, so every layer after RequestID sees
// the request ID and the whole stack beneath Tracing is inside the trace
// span. CORS is added only when corsCfg.Enabled; limiter may be nil to
// skip rate limiting entirely.
func NewRouter(h *Handler, corsCfg config.CORSConfig, limiter ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /solve_vrp", h.SolveVRP)
	mux.HandleFunc("POST /enrich_municipality", h.EnrichMunicipality)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	if limiter != nil {
		handler = middleware.RateLimit(limiter)(handler)
	}
	handler = middleware.Metrics(handler)
	handler = middleware.Logging(handler)
	handler = telemetry.HTTPMiddleware(handler)
	handler = middleware.RequestID(handler)
	if corsCfg.Enabled {
		handler = middleware.CORS(corsCfg)(handler)
	}
	return handler
}
