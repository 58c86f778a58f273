package langagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCostUsesModelSpecificPricing(t *testing.T) {
	cost := estimateCost("gpt-4o-mini", Usage{UncachedInputTokens: 1_000_000, OutputTokens: 1_000_000})
	assert.InDelta(t, 0.15+0.60, cost, 0.0001)
}

func TestEstimateCostAccountsForCachedTokensSeparately(t *testing.T) {
	cost := estimateCost("gpt-4o", Usage{CachedInputTokens: 1_000_000})
	assert.InDelta(t, 1.25, cost, 0.0001)
}

func TestEstimateCostFallsBackToDefaultModelPricing(t *testing.T) {
	cost := estimateCost("some-unknown-model", Usage{UncachedInputTokens: 1_000_000})
	assert.InDelta(t, priceTable["gpt-4o-mini"].UncachedInputPerMillion, cost, 0.0001)
}

func TestEstimateEmbeddingCostScalesLinearlyWithTokens(t *testing.T) {
	cost := estimateEmbeddingCost(2_000_000)
	assert.InDelta(t, 0.04, cost, 0.0001)
}
