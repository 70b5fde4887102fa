package routing

import (
	"fmt"
	"math"
)

// Weights of the scoring criteria. They must sum to 1.
type Weights struct {
	Cost       float64 `json:"cost"`
	Complexity float64 `json:"complexity"`
	Context    float64 `json:"context"`
	Priority   float64 `json:"priority"`
	Load       float64 `json:"load"`
}

func DefaultWeights() Weights {
	return Weights{Cost: 0.30, Complexity: 0.25, Context: 0.20, Priority: 0.15, Load: 0.10}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"cost": w.Cost, "complexity": w.Complexity, "context": w.Context, "priority": w.Priority, "load": w.Load,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative", name)
		}
	}
	total := w.Cost + w.Complexity + w.Context + w.Priority + w.Load
	if math.Abs(total-1.0) >= 0.001 {
		return fmt.Errorf("weights must sum to 1.0, got %.3f", total)
	}
	return nil
}

// Scorer rates candidates. It is immutable; replace it to change weights.
type Scorer struct {
	weights Weights
}

func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

func (s *Scorer) Weights() Weights { return s.weights }

// ScoreAll scores every candidate. loads maps provider name to a 0..1 load.
func (s *Scorer) ScoreAll(candidates []Candidate, analysis Analysis, loads map[string]float64) []Score {
	out := make([]Score, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, s.Score(c, analysis, loads))
	}
	return out
}

func (s *Scorer) Score(c Candidate, analysis Analysis, loads map[string]float64) Score {
	sc := Score{
		ModelName:       c.Model.Name,
		ProviderName:    c.Provider.Name,
		CostScore:       costScore(c),
		ComplexityScore: complexityScore(c, analysis),
		ContextScore:    contextScore(c, analysis),
		PriorityScore:   priorityScore(c),
		LoadScore:       1.0 - loads[c.Provider.Name],
		EstimatedCost:   EstimateCost(c.Model.InputPricePer1K, c.Model.OutputPricePer1K, analysis.TokenEstimate),
	}
	w := s.weights
	sc.FinalScore = sc.CostScore*w.Cost +
		sc.ComplexityScore*w.Complexity +
		sc.ContextScore*w.Context +
		sc.PriorityScore*w.Priority +
		sc.LoadScore*w.Load
	sc.Reasoning = reasoning(c, sc)
	return sc
}

// EstimateCost assumes the answer is as long as the prompt.
func EstimateCost(inputPer1K, outputPer1K float64, tokens int) float64 {
	t := float64(tokens)
	return t*inputPer1K/1000 + t*outputPer1K/1000
}

func costScore(c Candidate) float64 {
	avg := (c.Model.InputPricePer1K + c.Model.OutputPricePer1K) / 2
	switch {
	case avg <= 0.001:
		return 1.0
	case avg <= 0.01:
		return 0.8
	case avg <= 0.05:
		return 0.6
	case avg <= 0.1:
		return 0.4
	default:
		return 0.2
	}
}

func complexityScore(c Candidate, analysis Analysis) float64 {
	ctx := c.Model.ContextWindow
	switch analysis.Complexity {
	case ComplexitySimple:
		return 0.9
	case ComplexityStandard:
		if ctx >= 4000 {
			return 0.8
		}
		return 0.6
	case ComplexityComplex:
		switch {
		case ctx >= 8000:
			return 0.9
		case ctx >= 4000:
			return 0.7
		default:
			return 0.4
		}
	default:
		switch {
		case ctx >= 16000:
			return 1.0
		case ctx >= 8000:
			return 0.8
		default:
			return 0.3
		}
	}
}

func contextScore(c Candidate, analysis Analysis) float64 {
	required := float64(analysis.TokenEstimate) * 1.5
	if required == 0 {
		return 1.0
	}
	ratio := float64(c.Model.ContextWindow) / required
	switch {
	case ratio >= 3.0:
		return 1.0
	case ratio >= 2.0:
		return 0.9
	case ratio >= 1.5:
		return 0.8
	case ratio >= 1.2:
		return 0.6
	case ratio >= 1.0:
		return 0.4
	default:
		return 0.1
	}
}

func priorityScore(c Candidate) float64 {
	return math.Min(math.Max(float64(c.Model.Priority-1)/9, 0), 1)
}

func reasoning(c Candidate, sc Score) []string {
	lines := []string{fmt.Sprintf("Model: %s (%s)", c.Model.Name, c.Provider.Name)}

	switch {
	case sc.CostScore >= 0.8:
		lines = append(lines, "✓ Excellent cost efficiency")
	case sc.CostScore >= 0.6:
		lines = append(lines, "✓ Good cost efficiency")
	case sc.CostScore >= 0.4:
		lines = append(lines, "~ Moderate cost")
	default:
		lines = append(lines, "✗ Higher than average cost")
	}

	switch {
	case sc.ComplexityScore >= 0.8:
		lines = append(lines, "✓ Well-suited for prompt complexity")
	case sc.ComplexityScore >= 0.6:
		lines = append(lines, "✓ Adequate for prompt complexity")
	default:
		lines = append(lines, "~ May struggle with prompt complexity")
	}

	switch {
	case sc.ContextScore >= 0.8:
		lines = append(lines, "✓ Ample context window")
	case sc.ContextScore >= 0.6:
		lines = append(lines, "✓ Sufficient context window")
	default:
		lines = append(lines, "~ Limited context window")
	}

	switch {
	case sc.PriorityScore >= 0.8:
		lines = append(lines, "✓ High priority model")
	case sc.PriorityScore >= 0.6:
		lines = append(lines, "✓ Medium priority model")
	default:
		lines = append(lines, "~ Low priority model")
	}

	switch {
	case sc.LoadScore >= 0.8:
		lines = append(lines, "✓ Low provider load")
	case sc.LoadScore >= 0.6:
		lines = append(lines, "~ Moderate provider load")
	default:
		lines = append(lines, "✗ High provider load")
	}

	return append(lines, fmt.Sprintf("Final score: %.3f", sc.FinalScore))
}
