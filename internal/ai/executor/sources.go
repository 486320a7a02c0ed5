package executor

import (
	"fmt"
	"strings"
	"sync"

	"ai-orchestrator/internal/ai/retrieval"
	"ai-orchestrator/internal/ai/tools/websearch"
	"ai-orchestrator/internal/models"
)

// sourceBook numbers candidate sources. Web results found by the tool loop
// are appended after the ones found during preparation, so refs handed to
// the model never change.
type sourceBook struct {
	mu     sync.Mutex
	rag    []models.AssistantSource
	chunks []models.RetrievedChunk
	web    []models.AssistantSource
	webIdx map[string]int
}

func newSourceBook() *sourceBook {
	return &sourceBook{webIdx: map[string]int{}}
}

func (b *sourceBook) setChunks(chunks []models.RetrievedChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = chunks
	b.rag = retrieval.BuildCitationSources(chunks)
}

// addWeb returns the W ref for each result. A URL seen before keeps its ref.
func (b *sourceBook) addWeb(results []websearch.Result) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	refs := make([]string, len(results))
	for i, r := range results {
		key := strings.ToLower(strings.TrimRight(r.URL, "/"))
		idx, ok := b.webIdx[key]
		if !ok {
			b.web = append(b.web, models.NewWebSource(r.URL, r.Title, retrieval.Snippet(r.Snippet)))
			idx = len(b.web)
			b.webIdx[key] = idx
		}
		refs[i] = fmt.Sprintf("W%d", idx)
	}
	return refs
}

func (b *sourceBook) snapshot() (rag, web []models.AssistantSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.AssistantSource{}, b.rag...), append([]models.AssistantSource{}, b.web...)
}
