//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"resumeforge-backend/internal/config"
)

// SuperSet is the main provider set containing all providers.
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideCacheRegistry,
	ProvideClientPool,
	ProvideExecutor,
	ProvideResumeStore,
	ProvideResumeService,
	ProvidePrometheusRegistry,
	ProvideHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer builds the full dependency graph.
func InitializeContainer(cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
