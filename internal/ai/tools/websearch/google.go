package websearch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	httpc "ai-orchestrator/internal/common/http"
)

// GoogleProvider queries a Custom Search JSON API compatible endpoint.
type GoogleProvider struct {
	baseURL  string
	apiKey   string
	engineID string
	http     *httpc.Client
}

func NewGoogleProvider(baseURL, apiKey, engineID string, timeout time.Duration) *GoogleProvider {
	return &GoogleProvider{
		baseURL:  baseURL,
		apiKey:   apiKey,
		engineID: engineID,
		http:     httpc.NewClient(timeout),
	}
}

func (p *GoogleProvider) Name() string { return "google" }

type googleResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Mime    string `json:"mime"`
	} `json:"items"`
}

func (p *GoogleProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search base url: %w", err)
	}
	params := url.Values{}
	params.Add("key", p.apiKey)
	params.Add("cx", p.engineID)
	params.Add("q", query)
	if opts.Limit > 0 {
		// the API caps num at 10
		params.Add("num", fmt.Sprintf("%d", min(opts.Limit, 10)))
	}
	u.RawQuery = params.Encode()

	var out googleResponse
	if err := p.http.GetJSON(ctx, u.String(), &out); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(out.Items))
	for i, item := range out.Items {
		// skip PDFs and other non-HTML documents
		if item.Mime != "" && !strings.Contains(item.Mime, "html") {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Score:   1 - float64(i)/float64(len(out.Items)),
		})
	}
	return results, nil
}
