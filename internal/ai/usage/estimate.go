// Package usage meters token and cost usage and enforces daily quotas.
package usage

import (
	"math"

	"ai-orchestrator/pkg/registry"
)

// tokenizationOverhead pads the raw input length to cover tokenizer variance.
const tokenizationOverhead = 1.5

type Estimate struct {
	EstimatedTokens    int64   `json:"estimatedTokens"`
	EstimatedCostCents float64 `json:"estimatedCostCents"`
}

// EstimateUsage returns a worst-case estimate: the input length padded by
// 1.5x plus the planned context, and output at the largest allowed size.
func EstimateUsage(reg *registry.ModelRegistry, model string, inputLength, contextTokens, maxOutputTokens int) Estimate {
	spec, _ := reg.Lookup(model)

	tokensIn := int(math.Ceil(float64(inputLength)*tokenizationOverhead)) + contextTokens
	tokensOut := spec.CapOutput(maxOutputTokens)

	return Estimate{
		EstimatedTokens:    int64(tokensIn + tokensOut),
		EstimatedCostCents: spec.CostCents(tokensIn, 0, tokensOut),
	}
}
