package langagent

// priceTable holds per-million-token USD prices for the models this
// deployment is expected to use. The specification explicitly excludes a
// cost model for specific providers (§1 Non-goals); this is a minimal,
// swappable estimator, not a pricing authority.
type modelPrice struct {
	CachedInputPerMillion   float64
	UncachedInputPerMillion float64
	OutputPerMillion        float64
}

var priceTable = map[string]modelPrice{
	"gpt-4o-mini": {CachedInputPerMillion: 0.075, UncachedInputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":      {CachedInputPerMillion: 1.25, UncachedInputPerMillion: 2.50, OutputPerMillion: 10.00},
}

const defaultEmbeddingPerMillion = 0.02

// estimateCost computes cost_usd from a usage record (§4.D).
func estimateCost(model string, usage Usage) float64 {
	price, ok := priceTable[model]
	if !ok {
		price = priceTable["gpt-4o-mini"]
	}
	return float64(usage.CachedInputTokens)/1_000_000*price.CachedInputPerMillion +
		float64(usage.UncachedInputTokens)/1_000_000*price.UncachedInputPerMillion +
		float64(usage.OutputTokens)/1_000_000*price.OutputPerMillion
}

func estimateEmbeddingCost(tokens int) float64 {
	return float64(tokens) / 1_000_000 * defaultEmbeddingPerMillion
}
