package chat

import "github.com/Azure/ai-gateway/pkg/domain/gateway"

// Cost is the price breakdown of one exchange.
type Cost struct {
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	TotalCost        float64 `json:"total_cost"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	InputPricePer1K  float64 `json:"input_price_per_1k"`
	OutputPricePer1K float64 `json:"output_price_per_1k"`
}

// CalculateCost prices token counts with the model's per-1K rates.
func CalculateCost(inputTokens, outputTokens int, model gateway.Model) Cost {
	in := float64(inputTokens) * model.InputPricePer1K / 1000
	out := float64(outputTokens) * model.OutputPricePer1K / 1000
	return Cost{
		InputCost:        in,
		OutputCost:       out,
		TotalCost:        in + out,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		InputPricePer1K:  model.InputPricePer1K,
		OutputPricePer1K: model.OutputPricePer1K,
	}
}
