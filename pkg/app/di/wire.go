//go:build wireinject
// +build wireinject

//go:generate wire

package di

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/config"
)

// StorageSet opens and seeds the database.
var StorageSet = wire.NewSet(
	ProvideStore,
)

// ProviderSet builds the provider registry, adapters and their service.
var ProviderSet = wire.NewSet(
	ProvideCoordinator,
	ProvideRegistry,
	ProvideProviderSettings,
	ProvideFactory,
	ProvideProviderService,
)

// RoutingSet builds the decision engine and load tracking.
var RoutingSet = wire.NewSet(
	ProvideLoadManager,
	ProvideEngine,
)

// ServiceSet builds the application services and their transports.
var ServiceSet = wire.NewSet(
	ProvideMetrics,
	ProvideUsers,
	ProvideChat,
	ProvideAPIServer,
	ProvideMCPServer,
)

// InitializeContainer wires the full gateway from configuration.
func InitializeContainer(ctx context.Context, cfg *config.Config, version Version, logger zerolog.Logger) (*Container, func(), error) {
	wire.Build(
		StorageSet,
		ProviderSet,
		RoutingSet,
		ServiceSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}
