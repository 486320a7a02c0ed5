// Package registry holds the model cost and capability table used for output
// caps, cost accounting and quota estimates.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRegistry returns the built-in model table.
func DefaultRegistry() *ModelRegistry {
	return &ModelRegistry{
		Version: "1.0.0",
		Models: []ModelSpec{
			{
				ID: "gpt-4o-mini", Tier: TierMini,
				MaxInputTokens: 128000, MaxOutputTokens: 16384,
				SupportsTools: true, SupportsStructuredOutput: true, SupportsPromptCache: true,
				InputPer1K: 0.00015, CachedInputPer1K: 0.000075, OutputPer1K: 0.0006,
			},
			{
				ID: "gpt-4o", Tier: TierEscalation,
				MaxInputTokens: 128000, MaxOutputTokens: 16384,
				SupportsTools: true, SupportsStructuredOutput: true, SupportsPromptCache: true,
				InputPer1K: 0.0025, CachedInputPer1K: 0.00125, OutputPer1K: 0.01,
			},
			{
				ID: "gpt-4.1-mini", Tier: TierMini,
				MaxInputTokens: 1047576, MaxOutputTokens: 32768,
				SupportsTools: true, SupportsStructuredOutput: true, SupportsPromptCache: true,
				InputPer1K: 0.0004, CachedInputPer1K: 0.0001, OutputPer1K: 0.0016,
			},
			{
				ID: "gpt-4.1", Tier: TierEscalation,
				MaxInputTokens: 1047576, MaxOutputTokens: 32768,
				SupportsTools: true, SupportsStructuredOutput: true, SupportsPromptCache: true,
				InputPer1K: 0.002, CachedInputPer1K: 0.0005, OutputPer1K: 0.008,
			},
			{
				ID: "text-embedding-3-small", Tier: TierEmbedding,
				MaxInputTokens: 8191,
				InputPer1K:     0.00002,
			},
		},
	}
}

func LoadRegistry(path string) (*ModelRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ModelRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// LoadOrDefault loads path when set, otherwise returns DefaultRegistry.
func LoadOrDefault(path string) (*ModelRegistry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	reg, err := LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Save writes the registry as indented JSON.
func (r *ModelRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (r *ModelRegistry) Validate() error {
	if len(r.Models) == 0 {
		return fmt.Errorf("registry contains no models")
	}

	ids := make(map[string]bool, len(r.Models))
	for _, m := range r.Models {
		if m.ID == "" {
			return fmt.Errorf("model missing required field: id")
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate model id: %s", m.ID)
		}
		ids[m.ID] = true

		if m.InputPer1K < 0 || m.CachedInputPer1K < 0 || m.OutputPer1K < 0 {
			return fmt.Errorf("model %s has a negative price", m.ID)
		}
		if m.Tier != TierEmbedding && m.MaxOutputTokens <= 0 {
			return fmt.Errorf("model %s must allow at least one output token", m.ID)
		}
	}
	return nil
}

// Lookup returns the spec for id. Unknown ids get Fallback with the id filled
// in, so they are never under-priced.
func (r *ModelRegistry) Lookup(id string) (ModelSpec, bool) {
	for _, m := range r.Models {
		if m.ID == id {
			return m, true
		}
	}
	fb := r.Fallback()
	fb.ID = id
	return fb, false
}

// Fallback is a conservative spec: the highest price of each kind in the
// table and the smallest chat output cap.
func (r *ModelRegistry) Fallback() ModelSpec {
	fb := ModelSpec{ID: "unknown", Tier: TierEscalation, MaxInputTokens: 8192, MaxOutputTokens: 4096}
	minOut := 0
	for _, m := range r.Models {
		if m.InputPer1K > fb.InputPer1K {
			fb.InputPer1K = m.InputPer1K
		}
		if m.CachedInputPer1K > fb.CachedInputPer1K {
			fb.CachedInputPer1K = m.CachedInputPer1K
		}
		if m.OutputPer1K > fb.OutputPer1K {
			fb.OutputPer1K = m.OutputPer1K
		}
		if m.MaxOutputTokens > 0 && (minOut == 0 || m.MaxOutputTokens < minOut) {
			minOut = m.MaxOutputTokens
		}
	}
	if minOut > 0 {
		fb.MaxOutputTokens = minOut
	}
	return fb
}

// CostCents prices one call. cachedTokensIn is the part of tokensIn served
// from the prompt cache.
func (m ModelSpec) CostCents(tokensIn, cachedTokensIn, tokensOut int) float64 {
	if cachedTokensIn > tokensIn {
		cachedTokensIn = tokensIn
	}
	if cachedTokensIn < 0 {
		cachedTokensIn = 0
	}
	uncached := tokensIn - cachedTokensIn

	usd := float64(uncached)/1000*m.InputPer1K +
		float64(cachedTokensIn)/1000*m.CachedInputPer1K +
		float64(tokensOut)/1000*m.OutputPer1K
	return usd * 100
}

// CapOutput clamps requested to the model's output limit. A non-positive
// request means "as much as allowed".
func (m ModelSpec) CapOutput(requested int) int {
	if m.MaxOutputTokens <= 0 {
		return requested
	}
	if requested <= 0 || requested > m.MaxOutputTokens {
		return m.MaxOutputTokens
	}
	return requested
}
