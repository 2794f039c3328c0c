// Package rest exposes the health and observability surface. The
// editor's own API lives in another service; this router only reports
// on the caching layer.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"resumeforge-backend/internal/application/loaders"
	"resumeforge-backend/internal/application/services"
	"resumeforge-backend/internal/infrastructure/cache"
	"resumeforge-backend/internal/infrastructure/persistence"
)

// Router creates and configures the HTTP router
type Router struct {
	service  *services.ResumeService
	caches   *cache.Registry
	pool     *persistence.ClientPool
	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	service *services.ResumeService,
	caches *cache.Registry,
	pool *persistence.ClientPool,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Router {
	return &Router{
		service:  service,
		caches:   caches,
		pool:     pool,
		registry: registry,
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Get("/health", rt.healthCheck)
	router.Get("/stats", rt.stats)
	if rt.registry != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if rt.pool.Stats().Degraded {
		// Reads may still be served from cache, so degraded, not down.
		status = "degraded"
	}

	writeJSON(w, code, map[string]string{"status": status})
}

// statsResponse aggregates every observability counter this layer owns.
type statsResponse struct {
	Caches  map[string]cache.Stats `json:"caches"`
	Pool    persistence.PoolStats  `json:"pool"`
	Batcher loaders.BatcherMetrics `json:"batcher"`
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Caches:  rt.caches.Stats(),
		Pool:    rt.pool.Stats(),
		Batcher: rt.service.BatcherMetrics(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}
