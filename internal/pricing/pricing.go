// Package pricing estimates token counts and USD cost for runs. The price
// table is static; lookups degrade through a fallback ladder rather than
// failing, so cost is always computable.
package pricing

import "math"

// charsPerToken is the length heuristic used whenever a provider omits usage
// telemetry. Four characters per token is the usual rough average for English
// text.
const charsPerToken = 4

// DryRunOutputTokens is the fixed output-size stand-in for dry-run estimates.
// No output exists yet, so a rough average has to do.
const DryRunOutputTokens = 500

// fallbackPer1M is the flat combined-token rate applied when the provider
// itself is unknown to the table.
const fallbackPer1M = 10.0

// Rate holds USD prices per million tokens.
type Rate struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost is a computed run cost. Estimated marks values produced through the
// fallback ladder rather than an exact table hit.
type Cost struct {
	USD       float64
	Estimated bool
}

// defaultModels names the model whose rate stands in for unknown models under
// a known provider.
var defaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-3-5-sonnet-20241022",
	"google":    "gemini-1.5-flash",
	"mistral":   "mistral-small-latest",
	"local":     "llama3",
}

var table = map[string]map[string]Rate{
	"openai": {
		"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
		"gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
		"gpt-4-turbo":   {InputPer1M: 10.00, OutputPer1M: 30.00},
		"gpt-4":         {InputPer1M: 30.00, OutputPer1M: 60.00},
		"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},
	},
	"anthropic": {
		"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
		"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
		"claude-3-sonnet-20240229":   {InputPer1M: 3.00, OutputPer1M: 15.00},
		"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	},
	"google": {
		"gemini-1.5-pro":      {InputPer1M: 1.25, OutputPer1M: 5.00},
		"gemini-1.5-flash":    {InputPer1M: 0.075, OutputPer1M: 0.30},
		"gemini-1.5-flash-8b": {InputPer1M: 0.0375, OutputPer1M: 0.15},
		"gemini-1.0-pro":      {InputPer1M: 0.50, OutputPer1M: 1.50},
	},
	"mistral": {
		"mistral-large-latest":  {InputPer1M: 2.00, OutputPer1M: 6.00},
		"mistral-medium-latest": {InputPer1M: 0.40, OutputPer1M: 2.00},
		"mistral-small-latest":  {InputPer1M: 0.20, OutputPer1M: 0.60},
		"open-mistral-nemo":     {InputPer1M: 0.15, OutputPer1M: 0.15},
		"codestral-latest":      {InputPer1M: 0.30, OutputPer1M: 0.90},
	},
	"local": {
		// Local inference is free at the API boundary.
		"llama3": {InputPer1M: 0, OutputPer1M: 0},
	},
}

// EstimateTokens approximates the token count of text as ceil(len/4).
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// CalculateCost computes linear cost from the price table. Unknown models
// under a known provider fall back to that provider's default-model rate;
// wholly unknown providers fall back to a flat combined rate. Both fallbacks
// set Estimated.
func CalculateCost(provider, model string, inputTokens, outputTokens int) Cost {
	if rates, ok := table[provider]; ok {
		if r, ok := rates[model]; ok {
			return Cost{USD: linear(r, inputTokens, outputTokens)}
		}
		if r, ok := rates[defaultModels[provider]]; ok {
			return Cost{USD: linear(r, inputTokens, outputTokens), Estimated: true}
		}
	}
	combined := float64(inputTokens+outputTokens) / 1e6 * fallbackPer1M
	return Cost{USD: combined, Estimated: true}
}

func linear(r Rate, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*r.InputPer1M + float64(outputTokens)/1e6*r.OutputPer1M
}
