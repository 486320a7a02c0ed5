package retrieval

import (
	"fmt"
	"strings"

	"ai-orchestrator/internal/models"
)

const snippetLength = 200

// BuildCitationSources turns chunks into rag sources, one per chunk, in the
// same order. Source i is what marker [R<i+1>] refers to.
func BuildCitationSources(chunks []models.RetrievedChunk) []models.AssistantSource {
	sources := make([]models.AssistantSource, 0, len(chunks))
	for _, ch := range chunks {
		docID := metaString(ch.Metadata, "doc_id", "docId")
		if docID == "" {
			docID = ch.ID
		}
		title := metaString(ch.Metadata, "title", "source_title")
		if title == "" {
			title = fmt.Sprintf("Document %s", docID)
		}
		sources = append(sources, models.NewRAGSource(docID, title, Snippet(ch.Content), ch.Score))
	}
	return sources
}

// Snippet collapses whitespace and cuts text to 200 runes.
func Snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	runes := []rune(s)
	if len(runes) <= snippetLength {
		return s
	}
	return strings.TrimSpace(string(runes[:snippetLength]))
}

func metaString(meta map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
