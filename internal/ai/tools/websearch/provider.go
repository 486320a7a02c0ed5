// Package websearch is the provider-agnostic web search tool: per-tenant
// rate limiting, a response cache and domain filtering around a Provider.
package websearch

import (
	"context"
	"fmt"
	"time"

	"ai-orchestrator/internal/common/config"
)

type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

type Options struct {
	Limit int
}

// Provider is one upstream search API.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.WebSearchConfig) (Provider, error) {
	timeout := config.GetDuration(cfg.TimeoutMs)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch cfg.Provider {
	case "google", "":
		return NewGoogleProvider(cfg.BaseURL, cfg.APIKey, cfg.EngineID, timeout), nil
	case "tavily":
		return NewTavilyProvider(cfg.BaseURL, cfg.APIKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown web search provider %q", cfg.Provider)
	}
}
