package api

import (
	"context"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/routing"
)

// Store is the slice of the bolt store the HTTP layer reads directly.
type Store interface {
	Path() string
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (map[string]int, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]gateway.Provider, error)
	ListModels(ctx context.Context, availableOnly bool) ([]gateway.Model, error)
}

// DecisionEngine is the tuning surface of the model router.
type DecisionEngine interface {
	Analyzer() *routing.Analyzer
	PerformanceStats(ctx context.Context) routing.PerformanceStats
	UpdateWeights(ctx context.Context, w routing.Weights) error
	UpdateThreshold(ctx context.Context, t float64) error
	Weights() routing.Weights
	Threshold() float64
	ClearCache()
}

// LoadTuner updates provider request budgets.
type LoadTuner interface {
	UpdateProviderMaxRequests(ctx context.Context, provider string, maxRPM int) error
}
