package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/models"
)

// RetrieveHybrid embeds query once, runs BM25 and vector search concurrently,
// fuses the two lists and packs the top results into the context budget.
// Either backend failing fails the call; callers decide whether to degrade.
func RetrieveHybrid(
	ctx context.Context,
	tenantID, query string,
	topK int,
	bm25 BM25QueryFunc,
	vector VectorQueryFunc,
	embed EmbedFunc,
	opts Options,
) (*Result, error) {
	if err := validateRequest(tenantID, query); err != nil {
		return nil, err
	}
	if bm25 == nil || vector == nil || embed == nil {
		return nil, errors.NewValidationFailedError("bm25, vector and embed functions are required")
	}
	opts = opts.withDefaults()
	start := time.Now()

	embedding, err := embed(ctx, query)
	if err != nil {
		return nil, errors.NewRetrievalFailedError("embedding", err)
	}

	var bm25Hits, vectorHits []SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := bm25(gctx, tenantID, query, opts.BM25Limit)
		if err != nil {
			return errors.NewRetrievalFailedError("bm25", err)
		}
		bm25Hits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := vector(gctx, tenantID, embedding, opts.VectorLimit)
		if err != nil {
			return errors.NewRetrievalFailedError("vector", err)
		}
		vectorHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fused []models.RetrievedChunk
	if opts.Fusion == FusionWeighted {
		fused = FuseWeighted(bm25Hits, vectorHits, opts.BM25Weight, opts.VectorWeight)
	} else {
		fused = FuseRRF(bm25Hits, vectorHits, opts.RRFK, opts.BM25Weight, opts.VectorWeight)
	}

	stats := Stats{
		Fusion:     opts.Fusion,
		BM25Hits:   len(bm25Hits),
		VectorHits: len(vectorHits),
		Fused:      len(fused),
	}
	return finish(fused, topK, opts, stats, start), nil
}

// RetrieveVector is the vector-only variant for tenants without a BM25 index.
// Chunks keep the backend's raw similarity as their score.
func RetrieveVector(
	ctx context.Context,
	tenantID, query string,
	topK int,
	vector VectorQueryFunc,
	embed EmbedFunc,
	opts Options,
) (*Result, error) {
	if err := validateRequest(tenantID, query); err != nil {
		return nil, err
	}
	if vector == nil || embed == nil {
		return nil, errors.NewValidationFailedError("vector and embed functions are required")
	}
	opts = opts.withDefaults()
	start := time.Now()

	embedding, err := embed(ctx, query)
	if err != nil {
		return nil, errors.NewRetrievalFailedError("embedding", err)
	}
	hits, err := vector(ctx, tenantID, embedding, opts.VectorLimit)
	if err != nil {
		return nil, errors.NewRetrievalFailedError("vector", err)
	}

	c := newCollector()
	for _, h := range hits {
		cand := c.get(h)
		if h.Score > cand.score {
			cand.score = h.Score
		}
	}
	chunks := c.ranked()

	stats := Stats{Fusion: "vector", VectorHits: len(hits), Fused: len(chunks)}
	return finish(chunks, topK, opts, stats, start), nil
}

func validateRequest(tenantID, query string) error {
	var problems []string
	if strings.TrimSpace(tenantID) == "" {
		problems = append(problems, "tenantId is required")
	}
	if strings.TrimSpace(query) == "" {
		problems = append(problems, "query is required")
	}
	if len(problems) > 0 {
		return errors.NewValidationFailedError(strings.Join(problems, "; "))
	}
	return nil
}

// finish dedupes, thresholds, truncates to topK, re-ranks and packs.
func finish(chunks []models.RetrievedChunk, topK int, opts Options, stats Stats, start time.Time) *Result {
	seen := make(map[string]bool, len(chunks))
	kept := make([]models.RetrievedChunk, 0, len(chunks))
	for _, ch := range chunks {
		if seen[ch.ID] || ch.Score < opts.MinScore {
			continue
		}
		seen[ch.ID] = true
		kept = append(kept, ch)
	}
	stats.AboveThreshold = len(kept)

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	stats.Returned = len(kept)

	packed := PackContext(kept, opts.ContextMaxTokens)
	stats.ChunksUsed = packed.ChunksUsed
	stats.ChunksTruncated = packed.ChunksTruncated
	stats.LatencyMs = time.Since(start).Milliseconds()

	metrics.RetrievalChunks.WithLabelValues("used").Observe(float64(packed.ChunksUsed))
	metrics.RetrievalChunks.WithLabelValues("truncated").Observe(float64(packed.ChunksTruncated))

	return &Result{Context: packed, Chunks: kept, Stats: stats}
}
