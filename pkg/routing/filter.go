package routing

import (
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

// ModelCatalog is the registry view routing works from.
type ModelCatalog interface {
	Models() []gateway.Model
	ModelConfig(name string) (gateway.Model, bool)
	ProviderConfig(name string) (gateway.Provider, bool)
	ProviderNameForModel(model string) (string, bool)
}

// Requirements are the minimum a model must offer to be considered.
type Requirements struct {
	ContextWindow int
	Priority      int
}

func DefaultRequirements() Requirements {
	return Requirements{ContextWindow: 1024, Priority: 1}
}

// Filter drops models that cannot serve a prompt.
type Filter struct {
	req    Requirements
	logger zerolog.Logger
}

func NewFilter(req Requirements, logger zerolog.Logger) *Filter {
	return &Filter{req: req, logger: logger}
}

// Apply returns candidates able to hold the prompt with 50% headroom.
func (f *Filter) Apply(models []gateway.Model, analysis Analysis, catalog ModelCatalog) []Candidate {
	required := float64(analysis.TokenEstimate) * 1.5
	var out []Candidate
	for _, info := range models {
		c, ok := f.candidate(info.Name, catalog, required)
		if !ok || !QuickFilter(c, analysis) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *Filter) candidate(name string, catalog ModelCatalog, required float64) (Candidate, bool) {
	m, ok := catalog.ModelConfig(name)
	if !ok {
		f.logger.Debug().Str("model", name).Msg("Model config not found")
		return Candidate{}, false
	}
	if !m.IsAvailable {
		f.logger.Debug().Str("model", name).Msg("Model not available")
		return Candidate{}, false
	}
	if float64(m.ContextWindow) < required {
		f.logger.Debug().Str("model", name).Int("context_window", m.ContextWindow).
			Float64("required", required).Msg("Model filtered: context window below prompt requirement")
		return Candidate{}, false
	}
	if m.ContextWindow < f.req.ContextWindow {
		f.logger.Debug().Str("model", name).Int("context_window", m.ContextWindow).
			Int("min", f.req.ContextWindow).Msg("Model filtered: context window below minimum")
		return Candidate{}, false
	}
	if m.Priority < f.req.Priority {
		f.logger.Debug().Str("model", name).Int("priority", m.Priority).Msg("Model filtered: priority below minimum")
		return Candidate{}, false
	}

	providerName, _ := catalog.ProviderNameForModel(name)
	p, ok := catalog.ProviderConfig(providerName)
	if !ok {
		f.logger.Debug().Str("provider", providerName).Msg("Provider config not found")
		return Candidate{}, false
	}
	if !p.IsActive {
		f.logger.Debug().Str("provider", providerName).Msg("Provider not active")
		return Candidate{}, false
	}
	m.ProviderName = p.Name
	return Candidate{Model: m, Provider: p}, true
}

// QuickFilter rejects model types unfit for the prompt type.
func QuickFilter(c Candidate, analysis Analysis) bool {
	if analysis.PromptType == "code_generation" {
		return c.Model.Type == gateway.ModelText || c.Model.Type == gateway.ModelCode
	}
	return true
}
