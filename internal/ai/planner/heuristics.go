package planner

import (
	"regexp"
	"strings"

	"ai-orchestrator/internal/ai/tools/finance"
	"ai-orchestrator/internal/models"
)

const maxQueryTerms = 10

// Heuristics is the cheap, deterministic plan derived from the raw input. It
// seeds the model prompt and is the plan of record when the model call fails.
type Heuristics struct {
	RequiresRetrieval bool     `json:"requires_retrieval"`
	RequiresWebSearch bool     `json:"requires_web_search"`
	QueryTerms        []string `json:"query_terms"`
	Sections          []string `json:"sections"`
	MetricsNeeded     []string `json:"metrics_needed"`
}

// Plan converts the heuristics into a plan. It never escalates.
func (h Heuristics) Plan(task string) models.PlannerOutput {
	out := models.PlannerOutput{
		Task:              task,
		RequiresRetrieval: h.RequiresRetrieval,
		RequiresWebSearch: h.RequiresWebSearch,
		QueryTerms:        append([]string{}, h.QueryTerms...),
		Sections:          append([]string{}, h.Sections...),
		MetricsNeeded:     append([]string{}, h.MetricsNeeded...),
	}
	out.EnsureSources()
	return out
}

type HeuristicDeriver interface {
	DeriveHeuristics(input models.PlannerInput) Heuristics
}

var (
	retrievalPattern = regexp.MustCompile(`(?i)\b(our|my|the|this|attached|uploaded|internal)\s+(deck|doc|docs|document|documents|file|files|pdf|report|notes|data|spreadsheet|memo|kb|knowledge\s+base)\b|\b(uploaded|attached|internal)\b`)
	webPattern       = regexp.MustCompile(`(?i)\b(market|markets|competitor|competitors|competition|competitive|pricing|prices|price|industry|trend|trends|benchmark|benchmarks|landscape|latest|news)\b`)
	tokenSplit       = regexp.MustCompile(`[^a-z0-9]+`)
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"are": true, "was": true, "were": true, "from": true, "into": true, "about": true,
	"what": true, "which": true, "who": true, "how": true, "why": true, "when": true,
	"where": true, "can": true, "could": true, "should": true, "would": true, "will": true,
	"our": true, "your": true, "their": true, "its": true, "has": true, "have": true,
	"had": true, "not": true, "but": true, "all": true, "any": true, "some": true,
	"you": true, "they": true, "them": true, "there": true, "here": true, "than": true,
	"then": true, "also": true, "just": true, "more": true, "most": true, "very": true,
	"please": true, "give": true, "make": true, "need": true, "want": true, "like": true,
	"does": true, "did": true, "been": true, "being": true, "over": true, "under": true,
	"per": true, "via": true, "use": true, "using": true, "help": true, "tell": true,
}

var canonicalSections = map[models.AssistantType][]string{
	models.AssistantStreamlinedPlan:     {"Problem", "Solution", "ICP", "GTM", "Business Model", "Financials", "Risks", "Next Steps"},
	models.AssistantMarketAnalysis:      {"Market Definition", "Market Sizing", "Competitors", "Trends", "Opportunities", "Risks"},
	models.AssistantFinancialProjection: {"Assumptions", "Unit Economics", "Projection", "Runway", "Risks"},
	models.AssistantGrowthStrategy:      {"Current State", "Growth Levers", "Channels", "Experiments", "Metrics", "Risks"},
	models.AssistantGeneral:             {"Summary", "Details", "Next Steps"},
}

// CanonicalSections returns a copy of the section list for an assistant type.
func CanonicalSections(a models.AssistantType) []string {
	sections, ok := canonicalSections[a]
	if !ok {
		sections = canonicalSections[models.AssistantGeneral]
	}
	return append([]string{}, sections...)
}

// RegexHeuristics is the default HeuristicDeriver.
type RegexHeuristics struct{}

func (RegexHeuristics) DeriveHeuristics(input models.PlannerInput) Heuristics {
	h := Heuristics{
		RequiresRetrieval: retrievalPattern.MatchString(input.Input),
		RequiresWebSearch: input.Assistant == models.AssistantMarketAnalysis || webPattern.MatchString(input.Input),
		QueryTerms:        ExtractQueryTerms(input.Input),
		Sections:          CanonicalSections(input.Assistant),
	}

	if _, ok := input.Extra.FinanceInputs(); ok || input.Assistant == models.AssistantFinancialProjection {
		h.MetricsNeeded = append([]string{}, finance.DefaultMetrics...)
	}

	if (h.RequiresRetrieval || h.RequiresWebSearch) && !containsFold(h.Sections, models.SourcesSection) {
		h.Sections = append(h.Sections, models.SourcesSection)
	}
	return h
}

// ExtractQueryTerms keeps lower-case tokens of three or more characters that
// are not stopwords, then adds bigrams of adjacent kept tokens. Duplicates
// are dropped and the result is capped at ten terms.
func ExtractQueryTerms(text string) []string {
	var kept []string
	for _, tok := range tokenSplit.Split(strings.ToLower(text), -1) {
		if len(tok) >= 3 && !stopwords[tok] {
			kept = append(kept, tok)
		}
	}

	candidates := append([]string{}, kept...)
	for i := 0; i+1 < len(kept); i++ {
		candidates = append(candidates, kept[i]+" "+kept[i+1])
	}

	seen := make(map[string]bool, len(candidates))
	terms := make([]string, 0, maxQueryTerms)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		terms = append(terms, c)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
