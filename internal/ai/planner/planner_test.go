package planner

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/usage"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/internal/models"
)

type fakeProvider struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return &llm.CompletionResponse{Model: req.Model, Text: f.replies[idx], TokensIn: 400, TokensOut: 120}, nil
}

func (f *fakeProvider) Embed(context.Context, string, []string) ([][]float32, error) {
	return nil, stderrors.New("not used")
}

type fakeQuota struct {
	err    error
	tokens int64
}

func (f *fakeQuota) AssertQuotasOK(_ context.Context, _, _ string, planned int64, _ float64) error {
	f.tokens = planned
	return f.err
}

func newTestPlanner(t *testing.T, p llm.Provider, quota QuotaChecker) *Planner {
	cfg := llm.Config{
		MiniModel:       "gpt-4o-mini",
		EscalationModel: "gpt-4o",
		Retry:           llm.RetryConfig{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Timeout:         time.Second,
		PromptCaching:   true,
	}
	client := llm.NewClient(p, nil, nil, nil, cfg, observability.NewNoop(), logger.NewTestLogger(t))
	return NewPlanner(client, quota, nil, Config{}, observability.NewNoop(), logger.NewTestLogger(t))
}

func marketInput() models.PlannerInput {
	return models.PlannerInput{
		Assistant: models.AssistantMarketAnalysis,
		Input:     "competitor pricing for B2B SaaS",
		TenantID:  "t1",
		UserID:    "u1",
	}
}

func TestRegexHeuristics(t *testing.T) {
	tests := []struct {
		name      string
		input     models.PlannerInput
		retrieval bool
		web       bool
		sections  []string
		metrics   bool
	}{
		{
			name:     "market analysis always searches the web",
			input:    models.PlannerInput{Assistant: models.AssistantMarketAnalysis, Input: "size the opportunity"},
			web:      true,
			sections: []string{"Market Definition", "Market Sizing", "Competitors", "Trends", "Opportunities", "Risks", "Sources"},
		},
		{
			name:      "reference to uploaded deck needs retrieval",
			input:     models.PlannerInput{Assistant: models.AssistantGeneral, Input: "Summarize our deck for the board"},
			retrieval: true,
			sections:  []string{"Summary", "Details", "Next Steps", "Sources"},
		},
		{
			name:     "pricing language needs the web",
			input:    models.PlannerInput{Assistant: models.AssistantGrowthStrategy, Input: "How should we react to pricing changes?"},
			web:      true,
			sections: []string{"Current State", "Growth Levers", "Channels", "Experiments", "Metrics", "Risks", "Sources"},
		},
		{
			name:     "financial projection needs metrics but no sources",
			input:    models.PlannerInput{Assistant: models.AssistantFinancialProjection, Input: "Project next year"},
			sections: []string{"Assumptions", "Unit Economics", "Projection", "Runway", "Risks"},
			metrics:  true,
		},
		{
			name: "finance extra needs metrics",
			input: models.PlannerInput{
				Assistant: models.AssistantGeneral,
				Input:     "are we ok",
				Extra:     &models.Extra{Kind: models.ExtraFinance, Finance: &models.FinanceInputs{MonthlyRevenue: 10}},
			},
			sections: []string{"Summary", "Details", "Next Steps"},
			metrics:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RegexHeuristics{}.DeriveHeuristics(tt.input)
			assert.Equal(t, tt.retrieval, h.RequiresRetrieval)
			assert.Equal(t, tt.web, h.RequiresWebSearch)
			assert.Equal(t, tt.sections, h.Sections)
			assert.Equal(t, tt.metrics, len(h.MetricsNeeded) > 0)
		})
	}
}

func TestExtractQueryTerms(t *testing.T) {
	assert.Equal(t,
		[]string{"competitor", "pricing", "b2b", "saas", "competitor pricing", "pricing b2b", "b2b saas"},
		ExtractQueryTerms("competitor pricing for B2B SaaS"),
	)

	long := ExtractQueryTerms("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo")
	assert.Len(t, long, 10)
	assert.Equal(t, "alpha", long[0])

	assert.Equal(t, []string{"churn", "churn churn"}, ExtractQueryTerms("churn churn, churn!"))
	assert.Empty(t, ExtractQueryTerms("is it ok?"))
}

func TestPlan_FallbackMatchesHeuristics(t *testing.T) {
	provider := &fakeProvider{err: stderrors.New("bad request")}
	p := newTestPlanner(t, provider, nil)
	input := marketInput()

	res := p.Plan(context.Background(), input)
	h := RegexHeuristics{}.DeriveHeuristics(input)

	assert.True(t, res.Fallback)
	assert.Equal(t, h.Sections, res.Plan.Sections)
	assert.Equal(t, h.RequiresRetrieval, res.Plan.RequiresRetrieval)
	assert.Equal(t, h.RequiresWebSearch, res.Plan.RequiresWebSearch)
	assert.False(t, res.Plan.EscalateModel)
	assert.True(t, res.Plan.RequiresWebSearch)
	assert.Contains(t, res.Plan.Sections, models.SourcesSection)
	assert.Zero(t, res.Usage.TokensIn)

	again := p.Plan(context.Background(), input)
	assert.Equal(t, res.Plan, again.Plan)
}

func TestPlan_FallsBackOnInvalidStructuredOutput(t *testing.T) {
	provider := &fakeProvider{replies: []string{"not json", `{"task":"x"}`}}
	p := newTestPlanner(t, provider, nil)

	res := p.Plan(context.Background(), marketInput())

	assert.True(t, res.Fallback)
	assert.Len(t, provider.requests, 2)
	assert.False(t, res.Plan.EscalateModel)
}

func TestPlan_UsesModelPlanAndAddsSources(t *testing.T) {
	provider := &fakeProvider{replies: []string{`{
		"task": "Compare competitor pricing",
		"requires_retrieval": true,
		"requires_web_search": false,
		"query_terms": ["b2b saas pricing"],
		"sections": ["Competitors", "Pricing"],
		"metrics_needed": [],
		"escalate_model": true
	}`}}
	p := newTestPlanner(t, provider, nil)

	res := p.Plan(context.Background(), marketInput())

	require.False(t, res.Fallback)
	assert.Equal(t, []string{"Competitors", "Pricing", "Sources"}, res.Plan.Sections)
	assert.True(t, res.Plan.RequiresWebSearch, "market analysis always searches the web")
	assert.True(t, res.Plan.EscalateModel)
	assert.Equal(t, 400, res.Usage.TokensIn)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, "planner:market_analysis", req.PromptCacheKey)
	require.NotNil(t, req.ResponseFormat)
	assert.True(t, req.ResponseFormat.Strict)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.RoleDeveloper, req.Messages[1].Role)
	assert.Contains(t, req.Messages[2].Content, `"hints"`)
}

func TestPlanWithQuotaCheck(t *testing.T) {
	t.Run("quota error propagates without a model call", func(t *testing.T) {
		provider := &fakeProvider{err: stderrors.New("unreachable")}
		quotaErr := errors.NewQuotaExceededError(usage.ReasonUserDaily, time.Now())
		p := newTestPlanner(t, provider, &fakeQuota{err: quotaErr})

		_, err := p.PlanWithQuotaCheck(context.Background(), marketInput())

		assert.True(t, errors.HasCode(err, errors.ErrCodeQuotaExceeded))
		assert.Empty(t, provider.requests)
	})

	t.Run("invalid input is rejected", func(t *testing.T) {
		p := newTestPlanner(t, &fakeProvider{}, &fakeQuota{})
		input := marketInput()
		input.UserID = ""

		_, err := p.PlanWithQuotaCheck(context.Background(), input)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})

	t.Run("estimate covers input and planner output", func(t *testing.T) {
		quota := &fakeQuota{}
		p := newTestPlanner(t, &fakeProvider{err: stderrors.New("down")}, quota)

		res, err := p.PlanWithQuotaCheck(context.Background(), marketInput())
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		// 31 runes * 1.5 rounded up, plus the 800 token output cap
		assert.Equal(t, int64(47+800), quota.tokens)
	})
}
