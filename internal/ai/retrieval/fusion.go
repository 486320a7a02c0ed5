package retrieval

import (
	"sort"

	"ai-orchestrator/internal/models"
)

type candidate struct {
	id       string
	content  string
	metadata map[string]interface{}
	score    float64
}

// collector keeps candidates in first-seen order: BM25 list first, then any
// ids only the vector list returned. Ties in the final sort keep this order.
type collector struct {
	order []*candidate
	byID  map[string]*candidate
}

func newCollector() *collector {
	return &collector{byID: map[string]*candidate{}}
}

func (c *collector) get(r SearchResult) *candidate {
	if cand, ok := c.byID[r.ID]; ok {
		if cand.content == "" {
			cand.content = r.Content
		}
		if cand.metadata == nil {
			cand.metadata = r.Metadata
		}
		return cand
	}
	cand := &candidate{id: r.ID, content: r.Content, metadata: r.Metadata}
	c.byID[r.ID] = cand
	c.order = append(c.order, cand)
	return cand
}

func (c *collector) ranked() []models.RetrievedChunk {
	sort.SliceStable(c.order, func(i, j int) bool {
		return c.order[i].score > c.order[j].score
	})
	out := make([]models.RetrievedChunk, len(c.order))
	for i, cand := range c.order {
		out[i] = models.RetrievedChunk{
			ID:       cand.id,
			Content:  cand.content,
			Metadata: cand.metadata,
			Score:    cand.score,
			Rank:     i + 1,
		}
	}
	return out
}

// FuseRRF combines two ranked lists with reciprocal rank fusion:
// score = bm25Weight/(k+bm25Rank) + vectorWeight/(k+vectorRank), counting
// only the lists a candidate appears in. Ranks are 1-indexed.
func FuseRRF(bm25, vector []SearchResult, k int, bm25Weight, vectorWeight float64) []models.RetrievedChunk {
	c := newCollector()
	addRRF(c, bm25, k, bm25Weight)
	addRRF(c, vector, k, vectorWeight)
	return c.ranked()
}

func addRRF(c *collector, results []SearchResult, k int, weight float64) {
	seen := make(map[string]bool, len(results))
	for i, r := range results {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		c.get(r).score += weight / float64(k+i+1)
	}
}

// FuseWeighted min-max normalises each list's raw scores to [0,1] and sums
// them with the given weights. A list whose scores are all equal (including
// a single hit) normalises to 1.
func FuseWeighted(bm25, vector []SearchResult, bm25Weight, vectorWeight float64) []models.RetrievedChunk {
	c := newCollector()
	addWeighted(c, bm25, bm25Weight)
	addWeighted(c, vector, vectorWeight)
	return c.ranked()
}

func addWeighted(c *collector, results []SearchResult, weight float64) {
	if len(results) == 0 {
		return
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		norm := 1.0
		if hi > lo {
			norm = (r.Score - lo) / (hi - lo)
		}
		c.get(r).score += weight * norm
	}
}
