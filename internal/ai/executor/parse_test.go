package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/models"
)

func TestParseSections(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		names []string
		check map[string]string
	}{
		{
			name:  "preamble goes to summary",
			text:  "Intro line.\n\n## Risks\nMany.\n### Next Steps\nShip it.",
			names: []string{"Summary", "Risks", "Next Steps"},
			check: map[string]string{"Summary": "Intro line.", "Next Steps": "Ship it."},
		},
		{
			name:  "no headings",
			text:  "just text",
			names: []string{"Summary"},
		},
		{
			name:  "deeper headings stay in content",
			text:  "# Plan\n#### detail\nbody",
			names: []string{"Plan"},
			check: map[string]string{"Plan": "#### detail\nbody"},
		},
		{
			name:  "empty heading kept",
			text:  "## Competitors\nA\n## Sources",
			names: []string{"Competitors", "Sources"},
			check: map[string]string{"Sources": ""},
		},
		{
			name:  "repeated heading is merged",
			text:  "## Risks\none\n## Other\nx\n## risks\ntwo",
			names: []string{"Risks", "Other"},
			check: map[string]string{"Risks": "one\n\ntwo"},
		},
		{
			name:  "closing hashes and CRLF",
			text:  "## Summary ##\r\nHello\r\n",
			names: []string{"Summary"},
			check: map[string]string{"Summary": "Hello"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseSections(tt.text)
			assert.Equal(t, tt.names, s.Names())
			for name, want := range tt.check {
				got, ok := s.Get(name)
				require.True(t, ok, name)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestMapCitations(t *testing.T) {
	rag := []models.AssistantSource{models.NewRAGSource("d1", "Doc 1", "", 1), models.NewRAGSource("d2", "Doc 2", "", 0.5)}
	web := []models.AssistantSource{models.NewWebSource("https://a.example", "A", "")}

	sources, stats := MapCitations("See [R2], then [W1] and [r2] again, [W2], [R0], [Q1].", rag, web)

	require.Len(t, sources, 2)
	assert.Equal(t, "d2", sources[0].DocID)
	assert.Equal(t, "https://a.example", sources[1].URL)
	assert.Equal(t, CitationStats{Markers: 5, Mapped: 2, Unmapped: 2, Unsupported: 1}, stats)
}

func TestMapCitations_ZeroPaddedMarkerIsSameSource(t *testing.T) {
	rag := []models.AssistantSource{models.NewRAGSource("d1", "Doc 1", "", 1)}

	sources, stats := MapCitations("see [R1] and again [R01], then [R001]", rag, nil)

	require.Len(t, sources, 1)
	assert.Equal(t, "d1", sources[0].DocID)
	assert.Equal(t, CitationStats{Markers: 1, Mapped: 1}, stats)
}

func TestMapCitations_NeverFabricates(t *testing.T) {
	sources, stats := MapCitations("[W1] [W2] [R1]", nil, nil)
	assert.Empty(t, sources)
	assert.Equal(t, 3, stats.Unmapped)
}
