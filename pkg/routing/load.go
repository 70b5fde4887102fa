package routing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const (
	loadWindow      = time.Hour
	defaultLoadTTL  = 300 * time.Second
	defaultMaxRPM   = 60
	loadsCacheKey   = "loads"
	windowMinutes   = 60.0
	maxLoadFraction = 1.0
)

// LoadStore is the storage view the load manager reads.
type LoadStore interface {
	ListProviders(ctx context.Context, activeOnly bool) ([]gateway.Provider, error)
	ProviderActivitySince(ctx context.Context, since time.Time) (map[string]gateway.ProviderActivity, error)
	UpdateProviderMaxRPM(ctx context.Context, name string, maxRPM int) error
}

// LoadManager derives provider load from the last hour of requests.
type LoadManager struct {
	store  LoadStore
	cache  *ttlcache.Cache[string, map[string]float64]
	logger zerolog.Logger
	now    func() time.Time
}

func NewLoadManager(store LoadStore, ttl time.Duration, logger zerolog.Logger) *LoadManager {
	if ttl <= 0 {
		ttl = defaultLoadTTL
	}
	return &LoadManager{
		store: store,
		cache: ttlcache.New[string, map[string]float64](
			ttlcache.WithTTL[string, map[string]float64](ttl),
			ttlcache.WithDisableTouchOnHit[string, map[string]float64](),
		),
		logger: logger,
		now:    time.Now,
	}
}

// Loads returns a 0..1 load per active provider. Errors yield an empty map
// so scoring treats every provider as idle.
func (m *LoadManager) Loads(ctx context.Context) map[string]float64 {
	if item := m.cache.Get(loadsCacheKey); item != nil {
		return copyLoads(item.Value())
	}

	detailed, err := m.DetailedLoads(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Error fetching provider loads")
		return map[string]float64{}
	}
	loads := make(map[string]float64, len(detailed))
	for name, d := range detailed {
		loads[name] = math.Min(d.RequestsPerMinute/float64(d.MaxRequestsPerMinute), maxLoadFraction)
	}
	m.cache.Set(loadsCacheKey, loads, ttlcache.DefaultTTL)
	return copyLoads(loads)
}

// DetailedLoads is computed fresh on every call.
func (m *LoadManager) DetailedLoads(ctx context.Context) (map[string]ProviderLoad, error) {
	providers, err := m.store.ListProviders(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	now := m.now()
	activity, err := m.store.ProviderActivitySince(ctx, now.Add(-loadWindow))
	if err != nil {
		return nil, fmt.Errorf("provider activity: %w", err)
	}

	out := make(map[string]ProviderLoad, len(providers))
	for _, p := range providers {
		maxRPM := p.MaxRequestsPerMinute
		if maxRPM <= 0 {
			maxRPM = defaultMaxRPM
		}
		act := activity[p.Name]
		rpm := float64(act.Requests) / windowMinutes
		out[p.Name] = ProviderLoad{
			ProviderName:         p.Name,
			LoadPercentage:       math.Min(rpm/float64(maxRPM)*100, 100),
			RequestsPerMinute:    rpm,
			MaxRequestsPerMinute: maxRPM,
			AvgProcessingTimeMS:  act.AvgProcessingMS,
			LastUpdated:          now,
		}
	}
	return out, nil
}

// UpdateProviderMaxRequests persists a new limit and invalidates cached loads.
func (m *LoadManager) UpdateProviderMaxRequests(ctx context.Context, provider string, maxRPM int) error {
	if maxRPM <= 0 {
		return fmt.Errorf("max requests per minute must be positive")
	}
	if err := m.store.UpdateProviderMaxRPM(ctx, provider, maxRPM); err != nil {
		return err
	}
	m.ClearCache()
	m.logger.Info().Str("provider", provider).Int("max_requests_per_minute", maxRPM).Msg("Updated provider max requests")
	return nil
}

func (m *LoadManager) ClearCache() {
	m.cache.DeleteAll()
	m.logger.Debug().Msg("Provider load cache cleared")
}

func copyLoads(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
