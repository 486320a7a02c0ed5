// Package retrieval implements hybrid BM25 + vector retrieval, rank fusion
// and token-budgeted context packing.
package retrieval

import (
	"context"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/models"
)

// SearchResult is one hit from a single backend, in backend rank order.
type SearchResult struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// Collaborator functions supplied by the caller. Both searches must scope
// results to tenantID.
type (
	BM25QueryFunc   func(ctx context.Context, tenantID, query string, limit int) ([]SearchResult, error)
	VectorQueryFunc func(ctx context.Context, tenantID string, embedding []float32, limit int) ([]SearchResult, error)
	EmbedFunc       func(ctx context.Context, text string) ([]float32, error)
)

type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
)

type Options struct {
	Fusion           FusionMethod
	RRFK             int
	BM25Weight       float64
	VectorWeight     float64
	BM25Limit        int
	VectorLimit      int
	MinScore         float64
	ContextMaxTokens int
}

// DefaultOptions returns RRF with k=60 and equal weights.
func DefaultOptions() Options {
	return Options{
		Fusion:           FusionRRF,
		RRFK:             60,
		BM25Weight:       0.5,
		VectorWeight:     0.5,
		BM25Limit:        50,
		VectorLimit:      50,
		ContextMaxTokens: 3000,
	}
}

func OptionsFromConfig(cfg config.RetrievalConfig) Options {
	return Options{
		Fusion:           FusionMethod(cfg.Fusion),
		RRFK:             cfg.RRFK,
		BM25Weight:       cfg.BM25Weight,
		VectorWeight:     cfg.VectorWeight,
		BM25Limit:        cfg.BM25Limit,
		VectorLimit:      cfg.VectorLimit,
		MinScore:         cfg.MinScore,
		ContextMaxTokens: cfg.ContextMaxTokens,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Fusion == "" {
		o.Fusion = d.Fusion
	}
	if o.RRFK <= 0 {
		o.RRFK = d.RRFK
	}
	if o.BM25Weight == 0 && o.VectorWeight == 0 {
		if o.Fusion == FusionWeighted {
			o.BM25Weight, o.VectorWeight = 0.3, 0.7
		} else {
			o.BM25Weight, o.VectorWeight = d.BM25Weight, d.VectorWeight
		}
	}
	if o.BM25Limit <= 0 {
		o.BM25Limit = d.BM25Limit
	}
	if o.VectorLimit <= 0 {
		o.VectorLimit = d.VectorLimit
	}
	return o
}

type Stats struct {
	Fusion          FusionMethod `json:"fusion"`
	BM25Hits        int          `json:"bm25Hits"`
	VectorHits      int          `json:"vectorHits"`
	Fused           int          `json:"fused"`
	AboveThreshold  int          `json:"aboveThreshold"`
	Returned        int          `json:"returned"`
	ChunksUsed      int          `json:"chunksUsed"`
	ChunksTruncated int          `json:"chunksTruncated"`
	LatencyMs       int64        `json:"latencyMs"`
}

type Result struct {
	Context models.PackedContext
	Chunks  []models.RetrievedChunk
	Stats   Stats
}
