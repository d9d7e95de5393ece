package config

import (
	"math"
	"strings"
)

// ModelPricing holds per-million-token prices for a model family.
type ModelPricing struct {
	InputPerMTok       float64
	OutputPerMTok      float64
	CacheReadPerMTok   float64
	CacheCreatePerMTok float64
}

// Pricing by model family, matched by substring of the model identifier.
// Unknown models fall back to the haiku row, which is the cheapest and
// therefore never overstates spend.
var (
	opusPricing   = ModelPricing{InputPerMTok: 15.0, OutputPerMTok: 75.0, CacheReadPerMTok: 1.5, CacheCreatePerMTok: 18.75}
	sonnetPricing = ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.30, CacheCreatePerMTok: 3.75}
	haikuPricing  = ModelPricing{InputPerMTok: 0.80, OutputPerMTok: 4.0, CacheReadPerMTok: 0.08, CacheCreatePerMTok: 1.0}
)

// LookupPricing returns the pricing row for a model identifier.
func LookupPricing(model string) ModelPricing {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus"):
		return opusPricing
	case strings.Contains(m, "sonnet"):
		return sonnetPricing
	default:
		return haikuPricing
	}
}

// EstimateCost computes the estimated cost in USD for the given token
// counts, rounded to cents.
func EstimateCost(model string, inputTokens, outputTokens, cacheRead, cacheCreate int64) float64 {
	p := LookupPricing(model)
	cost := float64(inputTokens)*p.InputPerMTok/1_000_000 +
		float64(outputTokens)*p.OutputPerMTok/1_000_000 +
		float64(cacheRead)*p.CacheReadPerMTok/1_000_000 +
		float64(cacheCreate)*p.CacheCreatePerMTok/1_000_000
	return math.Round(cost*100) / 100
}
