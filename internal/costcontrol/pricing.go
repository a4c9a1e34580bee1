package costcontrol

import "strings"

// PricingLookup resolves per-million-token prices for a model.
type PricingLookup interface {
	PricePerMillion(model string, direction Direction) float64
}

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMTok  float64 // USD per million input tokens
	OutputPerMTok float64 // USD per million output tokens
}

func (p ModelPricing) perMillion(direction Direction) float64 {
	if direction == Output {
		return p.OutputPerMTok
	}
	return p.InputPerMTok
}

// modelPricingTable maps model names to their pricing.
var modelPricingTable = map[string]ModelPricing{
	// Claude 4.x (dated)
	"claude-opus-4-6":            {InputPerMTok: 5, OutputPerMTok: 25},
	"claude-opus-4-0-20250514":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0-20250514": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5-20251001":  {InputPerMTok: 1, OutputPerMTok: 5},

	// Claude short aliases
	"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},

	// Claude 3.x
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku-20241022":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},

	// OpenAI
	"gpt-4o":                 {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4o-2024-11-20":      {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4o-mini":            {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o-mini-2024-07-18": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
}

// defaultPricing is used for unknown models (conservative to prevent silent overspend).
var defaultPricing = ModelPricing{InputPerMTok: 15, OutputPerMTok: 75}

// modelFamilyPricing maps model family prefixes to pricing.
// Lookup is longest-prefix-first so version-specific families win over broad ones.
var modelFamilyPricing = map[string]ModelPricing{
	"claude-opus-4-6":   {InputPerMTok: 5, OutputPerMTok: 25},
	"claude-opus-4-0":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-5-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},

	// Broad families (fallback)
	"claude-opus":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku":  {InputPerMTok: 1, OutputPerMTok: 5},
	"gpt-4o-mini":   {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":        {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4":         {InputPerMTok: 10, OutputPerMTok: 30},
}

// TablePricing is the built-in PricingLookup backed by the static tables.
type TablePricing struct{}

// PricePerMillion returns the per-million-token price for a model.
// Tries exact match, then prefix/family match (longest prefix wins), then default.
func (TablePricing) PricePerMillion(model string, direction Direction) float64 {
	if p, ok := modelPricingTable[model]; ok {
		return p.perMillion(direction)
	}

	bestPrefix := ""
	var bestPricing ModelPricing
	for prefix, p := range modelFamilyPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestPricing = p
		}
	}
	if bestPrefix != "" {
		return bestPricing.perMillion(direction)
	}

	return defaultPricing.perMillion(direction)
}
