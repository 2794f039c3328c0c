// Package di wires the caching layer's dependencies. Everything here is
// constructed once at startup and injected; there are no package-level
// singletons to reset between tests.
package di

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"resumeforge-backend/internal/application/services"
	"resumeforge-backend/internal/config"
	"resumeforge-backend/internal/infrastructure/cache"
	"resumeforge-backend/internal/infrastructure/persistence"
	"resumeforge-backend/internal/interfaces/http/rest"
	"resumeforge-backend/internal/repository"
	"resumeforge-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Caches   *cache.Registry
	Pool     *persistence.ClientPool
	Executor *persistence.Executor
	Store    *repository.ResumeStore
	Service  *services.ResumeService
	Registry *prometheus.Registry
	Handler  http.Handler
}

// Shutdown releases background resources in dependency order.
func (c *Container) Shutdown() {
	c.Pool.Close()
	c.Caches.Destroy()
	_ = c.Logger.Sync()
}

// ProvideLogger builds the process logger from the configured level.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideCacheRegistry constructs the four tuned cache instances.
func ProvideCacheRegistry(logger *zap.Logger) *cache.Registry {
	return cache.NewRegistry(logger)
}

// ProvideClientPool constructs the Supabase connection pool.
func ProvideClientPool(cfg *config.Config, logger *zap.Logger) *persistence.ClientPool {
	return persistence.NewClientPool(cfg, logger)
}

// ProvideExecutor constructs the resilient executor over the pool.
func ProvideExecutor(pool *persistence.ClientPool, cfg *config.Config, logger *zap.Logger) *persistence.Executor {
	return persistence.NewExecutor(pool, persistence.RetryOptionsFromConfig(cfg.Retry), logger)
}

// ProvideResumeStore constructs the PostgREST-backed document store.
func ProvideResumeStore(exec *persistence.Executor, cfg *config.Config, logger *zap.Logger) *repository.ResumeStore {
	return repository.NewResumeStore(exec, cfg, logger)
}

// ProvideResumeService constructs the cached data-access service.
func ProvideResumeService(store *repository.ResumeStore, caches *cache.Registry, cfg *config.Config, logger *zap.Logger) *services.ResumeService {
	return services.NewResumeService(store, caches, cfg.BatchWindow, logger)
}

// ProvidePrometheusRegistry registers the stats collector on a fresh
// registry so tests never collide on the global default.
func ProvidePrometheusRegistry(caches *cache.Registry, pool *persistence.ClientPool) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(observability.NewStatsCollector(caches, pool))
	return registry
}

// ProvideHandler constructs the observability HTTP surface.
func ProvideHandler(
	service *services.ResumeService,
	caches *cache.Registry,
	pool *persistence.ClientPool,
	registry *prometheus.Registry,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(service, caches, pool, registry, logger).Setup()
}
