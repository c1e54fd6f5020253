package pipeline

import "math"

// Pricing is the fixed per-million-token rate table held in configuration.
type Pricing struct {
	AudioInputPer1M float64 `mapstructure:"audio-input-per-1m"`
	TextInputPer1M  float64 `mapstructure:"text-input-per-1m"`
	OutputPer1M     float64 `mapstructure:"output-per-1m"`
}

// DefaultPricing matches the published Gemini 2.5 Flash rates.
func DefaultPricing() Pricing {
	return Pricing{
		AudioInputPer1M: 1.00,
		TextInputPer1M:  0.30,
		OutputPer1M:     2.50,
	}
}

// TokenCounts breaks provider usage down by phase.
type TokenCounts struct {
	ExtractionInput   int `json:"extraction_input"`
	ExtractionOutput  int `json:"extraction_output"`
	RankingInput      int `json:"ranking_input"`
	RankingOutput     int `json:"ranking_output"`
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
	TotalTokens       int `json:"total_tokens"`
}

// Costs is the estimate computed from the pricing table.
type Costs struct {
	AudioInputCost float64 `json:"audio_input_cost"`
	TextInputCost  float64 `json:"text_input_cost"`
	OutputCost     float64 `json:"output_cost"`
	TotalCost      float64 `json:"total_cost"`
	Currency       string  `json:"currency"`
}

// Metrics is the per-consultation performance record.
type Metrics struct {
	Timings          map[string]float64 `json:"timings"`
	TokenCounts      TokenCounts        `json:"token_counts"`
	Costs            Costs              `json:"costs"`
	APICalls         int                `json:"api_calls"`
	AIRankerDegraded []string           `json:"ai_ranker_degraded,omitempty"`
}

func (m *Metrics) finalize(pricing Pricing, audioInput bool) {
	tc := &m.TokenCounts
	tc.TotalInputTokens = tc.ExtractionInput + tc.RankingInput
	tc.TotalOutputTokens = tc.ExtractionOutput + tc.RankingOutput
	tc.TotalTokens = tc.TotalInputTokens + tc.TotalOutputTokens

	extractionRate := pricing.TextInputPer1M
	var audioCost float64
	if audioInput {
		extractionRate = pricing.AudioInputPer1M
		audioCost = float64(tc.ExtractionInput) / 1e6 * extractionRate
	}

	textTokens := tc.RankingInput
	if !audioInput {
		textTokens += tc.ExtractionInput
	}

	m.Costs = Costs{
		AudioInputCost: round6(audioCost),
		TextInputCost:  round6(float64(textTokens) / 1e6 * pricing.TextInputPer1M),
		OutputCost:     round6(float64(tc.TotalOutputTokens) / 1e6 * pricing.OutputPer1M),
		Currency:       "USD",
	}
	m.Costs.TotalCost = round6(m.Costs.AudioInputCost + m.Costs.TextInputCost + m.Costs.OutputCost)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
