package llm

// ModelTier represents the complexity/capability level of a model.
type ModelTier string

const (
	// TierLite is for simple tasks: classification, extraction, scoring.
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: drafting, structured output.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: research, review, planning.
	TierAdvanced ModelTier = "advanced"
)

// Config holds the model configuration for the application.
type Config struct {
	Models map[ModelTier]string
}

// DefaultConfig returns the default Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// GetModel returns the model name for a given tier, falling back to
// standard then lite when the tier is not configured.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// Per-million-token prices used for cost accounting. Close enough for
// budget tracking; exact billing lives with the provider.
var tierPricing = map[ModelTier]struct{ in, out float64 }{
	TierLite:     {in: 0.10, out: 0.40},
	TierStandard: {in: 0.30, out: 2.50},
	TierAdvanced: {in: 1.25, out: 10.00},
}

// EstimateCost converts token usage into an approximate USD cost for the
// given tier.
func EstimateCost(tier ModelTier, inputTokens, outputTokens int32) float64 {
	price, ok := tierPricing[tier]
	if !ok {
		price = tierPricing[TierStandard]
	}
	return float64(inputTokens)/1e6*price.in + float64(outputTokens)/1e6*price.out
}
