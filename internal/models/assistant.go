package models

import (
	"strings"

	"ai-orchestrator/internal/common/errors"
)

type AssistantType string

const (
	AssistantStreamlinedPlan     AssistantType = "streamlined_plan"
	AssistantMarketAnalysis      AssistantType = "market_analysis"
	AssistantFinancialProjection AssistantType = "financial_projection"
	AssistantGrowthStrategy      AssistantType = "growth_strategy"
	AssistantGeneral             AssistantType = "general"
)

func (a AssistantType) Valid() bool {
	switch a {
	case AssistantStreamlinedPlan, AssistantMarketAnalysis, AssistantFinancialProjection,
		AssistantGrowthStrategy, AssistantGeneral:
		return true
	}
	return false
}

// IsFinancial reports whether answers of this type carry money figures and
// therefore get a disclaimer.
func (a AssistantType) IsFinancial() bool {
	return a == AssistantFinancialProjection || a == AssistantStreamlinedPlan
}

// PlannerInput is the immutable request envelope handed to the planner.
type PlannerInput struct {
	Assistant AssistantType `json:"assistant"`
	Input     string        `json:"input"`
	TenantID  string        `json:"tenantId"`
	UserID    string        `json:"userId"`
	Extra     *Extra        `json:"extra,omitempty"`
}

func (p PlannerInput) Validate() error {
	var problems []string
	if !p.Assistant.Valid() {
		problems = append(problems, "assistant must be one of streamlined_plan, market_analysis, financial_projection, growth_strategy, general")
	}
	if strings.TrimSpace(p.Input) == "" {
		problems = append(problems, "input is required")
	}
	if p.TenantID == "" {
		problems = append(problems, "tenantId is required")
	}
	if p.UserID == "" {
		problems = append(problems, "userId is required")
	}
	if len(problems) > 0 {
		return errors.NewValidationFailedError(strings.Join(problems, "; "))
	}
	return nil
}

// SourcesSection is required whenever a plan pulls in external context.
const SourcesSection = "Sources"

// PlannerOutput is the plan produced once per request.
type PlannerOutput struct {
	Task              string   `json:"task"`
	RequiresRetrieval bool     `json:"requires_retrieval"`
	RequiresWebSearch bool     `json:"requires_web_search"`
	QueryTerms        []string `json:"query_terms"`
	Sections          []string `json:"sections"`
	MetricsNeeded     []string `json:"metrics_needed"`
	EscalateModel     bool     `json:"escalate_model"`
}

// HasSection compares case-insensitively.
func (p PlannerOutput) HasSection(name string) bool {
	for _, s := range p.Sections {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// EnsureSources appends "Sources" when retrieval or web search is required.
func (p *PlannerOutput) EnsureSources() {
	if (p.RequiresRetrieval || p.RequiresWebSearch) && !p.HasSection(SourcesSection) {
		p.Sections = append(p.Sections, SourcesSection)
	}
}

// AssistantRequest is the original user request carried to the executor.
type AssistantRequest struct {
	Assistant      AssistantType `json:"assistant"`
	Input          string        `json:"input"`
	TenantID       string        `json:"tenantId"`
	UserID         string        `json:"userId"`
	Extra          *Extra        `json:"extra,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
	RequestID      string        `json:"requestId,omitempty"`
}

func (r AssistantRequest) PlannerInput() PlannerInput {
	return PlannerInput{
		Assistant: r.Assistant,
		Input:     r.Input,
		TenantID:  r.TenantID,
		UserID:    r.UserID,
		Extra:     r.Extra,
	}
}

// RetrievedChunk is one fused retrieval hit. Rank is 1-indexed.
type RetrievedChunk struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
	Rank     int                    `json:"rank"`
}

// PackedContext is the set of chunks that fit the context token budget.
type PackedContext struct {
	Chunks          []RetrievedChunk `json:"chunks"`
	ChunksUsed      int              `json:"chunksUsed"`
	ChunksTruncated int              `json:"chunksTruncated"`
	TotalTokens     int              `json:"totalTokens"`
}

type SourceType string

const (
	SourceRAG SourceType = "rag"
	SourceWeb SourceType = "web"
)

// AssistantSource is either a retrieval source (DocID, Score) or a web source (URL).
type AssistantSource struct {
	Type    SourceType `json:"type"`
	DocID   string     `json:"docId,omitempty"`
	URL     string     `json:"url,omitempty"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Score   float64    `json:"score,omitempty"`
}

func NewRAGSource(docID, title, snippet string, score float64) AssistantSource {
	return AssistantSource{Type: SourceRAG, DocID: docID, Title: title, Snippet: snippet, Score: score}
}

func NewWebSource(url, title, snippet string) AssistantSource {
	return AssistantSource{Type: SourceWeb, URL: url, Title: title, Snippet: snippet}
}

// AssistantResponse is the terminal artifact returned to the caller.
type AssistantResponse struct {
	Assistant      AssistantType     `json:"assistant"`
	Sections       Sections          `json:"sections"`
	Sources        []AssistantSource `json:"sources"`
	RawModelOutput string            `json:"rawModelOutput"`
	Metadata       ResponseMetadata  `json:"metadata"`
	Quality        Quality           `json:"quality"`
}

type ResponseMetadata struct {
	Model      string  `json:"model"`
	TokensUsed int     `json:"tokensUsed"`
	LatencyMs  int64   `json:"latencyMs"`
	Cost       float64 `json:"cost"` // cents
	RequestID  string  `json:"requestId,omitempty"`
	Truncated  bool    `json:"truncated,omitempty"`
}

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type PolicyIssue struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Quality carries the signals that describe how much of the answer degraded.
type Quality struct {
	UnmappedCitations    int           `json:"unmappedCitations"`
	UnsupportedCitations int           `json:"unsupportedCitations"`
	MissingSections      []string      `json:"missingSections,omitempty"`
	PolicyIssues         []PolicyIssue `json:"policyIssues,omitempty"`
	Degraded             []string      `json:"degraded,omitempty"`
}

// HasPolicyErrors reports whether any issue has error severity.
func (q Quality) HasPolicyErrors() bool {
	for _, issue := range q.PolicyIssues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
