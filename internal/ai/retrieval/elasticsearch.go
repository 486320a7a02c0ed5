package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchBM25 runs lexical search over a chunk index. Documents carry
// content, tenant_id and optional title/doc_id/metadata fields.
type ElasticsearchBM25 struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchBM25(client *elasticsearch.Client, index string) *ElasticsearchBM25 {
	return &ElasticsearchBM25{client: client, index: index}
}

type esChunk struct {
	Content  string                 `json:"content"`
	Title    string                 `json:"title"`
	DocID    string                 `json:"doc_id"`
	Metadata map[string]interface{} `json:"metadata"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source esChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search matches query against content, filtered to tenantID. It satisfies
// BM25QueryFunc.
func (s *ElasticsearchBM25) Search(ctx context.Context, tenantID, query string, limit int) ([]SearchResult, error) {
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{"content": query}},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"tenant_id": tenantID}},
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		meta := hit.Source.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		if hit.Source.Title != "" {
			meta["title"] = hit.Source.Title
		}
		if hit.Source.DocID != "" {
			meta["doc_id"] = hit.Source.DocID
		}
		results = append(results, SearchResult{
			ID:       hit.ID,
			Content:  hit.Source.Content,
			Metadata: meta,
			Score:    hit.Score,
		})
	}
	return results, nil
}
