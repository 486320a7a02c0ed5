package websearch

import (
	"context"
	"strings"
	"time"

	httpc "ai-orchestrator/internal/common/http"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyProvider implements the Tavily search API.
type TavilyProvider struct {
	apiURL string
	apiKey string
	http   *httpc.Client
}

func NewTavilyProvider(apiURL, apiKey string, timeout time.Duration) *TavilyProvider {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultTavilyURL
	}
	return &TavilyProvider{apiURL: apiURL, apiKey: apiKey, http: httpc.NewClient(timeout)}
}

func (p *TavilyProvider) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (p *TavilyProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	req := tavilyRequest{
		APIKey:      p.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  opts.Limit,
	}

	var out tavilyResponse
	if err := p.http.PostJSON(ctx, p.apiURL, req, &out); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
	}
	return results, nil
}
