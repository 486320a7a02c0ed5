package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ai-orchestrator/internal/models"
)

// SummarySection receives text that appears before the first heading.
const SummarySection = "Summary"

var (
	headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*#*\s*$`)
	markerPattern  = regexp.MustCompile(`\[([A-Za-z]+)(\d+)\]`)
)

// ParseSections splits markdown output on #, ## and ### headings. A heading
// that repeats has its content appended to the first occurrence.
func ParseSections(text string) models.Sections {
	var (
		sections models.Sections
		current  = SummarySection
		buf      []string
		started  bool
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if !started && content == "" {
			return
		}
		if existing, ok := sections.Get(current); ok && existing != "" {
			if content != "" {
				content = existing + "\n\n" + content
			} else {
				content = existing
			}
		}
		sections.Set(current, content)
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headingPattern.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			flush()
			current = m[2]
			started = true
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return sections
}

// CitationStats counts distinct markers by outcome.
type CitationStats struct {
	Markers     int
	Mapped      int
	Unmapped    int
	Unsupported int
}

// MapCitations resolves [R<n>] markers against rag and [W<n>] markers against
// web, both 1-indexed. Sources are returned in first-use order, once each.
// Markers with no matching source are dropped and counted; markers with any
// other prefix are counted as unsupported.
func MapCitations(text string, rag, web []models.AssistantSource) ([]models.AssistantSource, CitationStats) {
	var (
		stats   CitationStats
		sources []models.AssistantSource
		seen    = map[string]bool{}
	)

	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		kind := strings.ToUpper(m[1])
		n, err := strconv.Atoi(m[2])
		key := kind + m[2]
		if err == nil {
			// [R1] and [R01] name the same source
			key = fmt.Sprintf("%s%d", kind, n)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		stats.Markers++

		var pool []models.AssistantSource
		switch kind {
		case "R":
			pool = rag
		case "W":
			pool = web
		default:
			stats.Unsupported++
			continue
		}

		if err != nil || n < 1 || n > len(pool) {
			stats.Unmapped++
			continue
		}
		sources = append(sources, pool[n-1])
		stats.Mapped++
	}

	return sources, stats
}

// renderSources lists sources as markdown bullets.
func renderSources(sources []models.AssistantSource) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch s.Type {
		case models.SourceWeb:
			fmt.Fprintf(&b, "- %s (%s)", s.Title, s.URL)
		default:
			fmt.Fprintf(&b, "- %s", s.Title)
		}
	}
	return b.String()
}

// missingSections returns planned sections absent from parsed, in plan order.
func missingSections(planned []string, parsed models.Sections) []string {
	var missing []string
	for _, name := range planned {
		if !parsed.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
