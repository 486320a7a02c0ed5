package registry

// Tier groups models by cost class.
type Tier string

const (
	TierMini       Tier = "mini"
	TierEscalation Tier = "escalation"
	TierEmbedding  Tier = "embedding"
)

// ModelRegistry is the on-disk registry document.
type ModelRegistry struct {
	Version     string      `json:"version"`
	LastUpdated string      `json:"lastUpdated"`
	Models      []ModelSpec `json:"models"`
}

// ModelSpec describes limits, capabilities and pricing of one model.
// Prices are USD per 1000 tokens.
type ModelSpec struct {
	ID                       string  `json:"id"`
	Tier                     Tier    `json:"tier"`
	MaxInputTokens           int     `json:"maxInputTokens"`
	MaxOutputTokens          int     `json:"maxOutputTokens"`
	SupportsTools            bool    `json:"supportsTools"`
	SupportsStructuredOutput bool    `json:"supportsStructuredOutput"`
	SupportsPromptCache      bool    `json:"supportsPromptCache"`
	InputPer1K               float64 `json:"inputPer1K"`
	CachedInputPer1K         float64 `json:"cachedInputPer1K"`
	OutputPer1K              float64 `json:"outputPer1K"`
}
