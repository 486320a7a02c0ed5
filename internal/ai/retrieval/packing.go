package retrieval

import "ai-orchestrator/internal/models"

// PackContext takes chunks in rank order until the next one would push the
// estimate past maxTokens. Everything from that chunk on is truncated.
func PackContext(chunks []models.RetrievedChunk, maxTokens int) models.PackedContext {
	packed := models.PackedContext{Chunks: []models.RetrievedChunk{}}

	for _, chunk := range chunks {
		tokens := EstimateTokens(chunk.Content)
		if packed.TotalTokens+tokens > maxTokens {
			break
		}
		packed.Chunks = append(packed.Chunks, chunk)
		packed.TotalTokens += tokens
	}

	packed.ChunksUsed = len(packed.Chunks)
	packed.ChunksTruncated = len(chunks) - packed.ChunksUsed
	return packed
}
