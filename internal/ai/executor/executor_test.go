package executor

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/planner"
	"ai-orchestrator/internal/ai/retrieval"
	"ai-orchestrator/internal/ai/tools"
	"ai-orchestrator/internal/ai/tools/websearch"
	"ai-orchestrator/internal/ai/usage"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/internal/models"
)

type step func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

type scriptedProvider struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	idx := len(p.requests) - 1
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	return p.steps[idx](req)
}

func (p *scriptedProvider) Embed(context.Context, string, []string) ([][]float32, error) {
	return nil, stderrors.New("not used")
}

func reply(text string) step {
	return func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Model: req.Model, Text: text, TokensIn: 1200, TokensOut: 300}, nil
	}
}

func callTool(name, args string) step {
	return func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Model:     req.Model,
			TokensIn:  800,
			TokensOut: 20,
			ToolCalls: []llm.ToolCall{{ID: "call-1", Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}},
		}, nil
	}
}

type stubSearch struct {
	mu      sync.Mutex
	results [][]websearch.Result
	calls   int
	err     error
}

func (s *stubSearch) Search(_ context.Context, _, _ string, _ int) ([]websearch.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx], nil
}

type stubQuota struct{ err error }

func (q stubQuota) AssertQuotasOK(context.Context, string, string, int64, float64) error { return q.err }

type stubRecorder struct {
	metrics []models.UsageMetric
	err     error
}

func (r *stubRecorder) Record(_ context.Context, m models.UsageMetric) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.metrics = append(r.metrics, m)
	return true, nil
}

func newTestExecutor(t *testing.T, p llm.Provider, search websearch.SearchFunc, quota QuotaChecker, rec UsageRecorder, cfg Config) *Executor {
	client := llm.NewClient(p, nil, nil, nil, llm.Config{
		MiniModel:       "gpt-4o-mini",
		EscalationModel: "gpt-4o",
		Retry:           llm.RetryConfig{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Timeout:         time.Second,
		MaxToolCalls:    3,
	}, observability.NewNoop(), logger.NewTestLogger(t))
	return NewExecutor(client, quota, rec, search, retrieval.DefaultOptions(), cfg, observability.NewNoop(), logger.NewTestLogger(t))
}

func twoWebResults() []websearch.Result {
	return []websearch.Result{
		{Title: "SaaS pricing benchmarks", URL: "https://example.com/pricing", Snippet: "Median seat price is $30."},
		{Title: "Competitor teardown", URL: "https://example.org/teardown", Snippet: "Leaders bundle features."},
	}
}

func TestExecute_MarketAnalysisEndToEnd(t *testing.T) {
	request := models.AssistantRequest{
		Assistant: models.AssistantMarketAnalysis,
		Input:     "competitor pricing for B2B SaaS",
		TenantID:  "t1",
		UserID:    "u1",
	}
	plan := planner.RegexHeuristics{}.DeriveHeuristics(request.PlannerInput()).Plan("Analyse competitor pricing")
	require.True(t, plan.RequiresWebSearch)
	require.Contains(t, plan.Sections, models.SourcesSection)

	provider := &scriptedProvider{steps: []step{reply("## Competitors\nleaders use [W1] pricing.\n## Sources")}}
	search := &stubSearch{results: [][]websearch.Result{twoWebResults()}}
	rec := &stubRecorder{}
	ex := newTestExecutor(t, provider, search.Search, stubQuota{}, rec, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{Plan: plan, Request: request, TenantID: "t1", UserID: "u1"})
	require.NoError(t, err)

	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "https://example.com/pricing", resp.Sources[0].URL)
	competitors, ok := resp.Sections.Get("Competitors")
	require.True(t, ok)
	assert.Contains(t, competitors, "leaders use [W1] pricing.")

	sources, _ := resp.Sections.Get("sources")
	assert.Contains(t, sources, "https://example.com/pricing")
	assert.Equal(t, 1500, resp.Metadata.TokensUsed)
	assert.Equal(t, "gpt-4o-mini", resp.Metadata.Model)
	assert.NotEmpty(t, resp.Metadata.RequestID)
	assert.Contains(t, resp.Quality.MissingSections, "Market Sizing")

	require.Len(t, provider.requests, 1)
	user := provider.requests[0].Messages[2].Content
	assert.Contains(t, user, "[W1] SaaS pricing benchmarks")
	assert.Contains(t, user, "[W2] Competitor teardown")
	require.Len(t, provider.requests[0].Tools, 1)
	assert.Equal(t, tools.WebSearchTool, provider.requests[0].Tools[0].Name)

	require.Len(t, rec.metrics, 1)
	assert.Equal(t, "t1", rec.metrics[0].TenantID)
	assert.Equal(t, 1200, rec.metrics[0].TokensIn)
}

func TestExecute_RetrievalCitationsAndUnmappedMarkers(t *testing.T) {
	bm25 := func(_ context.Context, tenantID, _ string, _ int) ([]retrieval.SearchResult, error) {
		assert.Equal(t, "t1", tenantID)
		return []retrieval.SearchResult{
			{ID: "c1", Content: "Churn fell to 3% in Q2.", Metadata: map[string]interface{}{"doc_id": "deck", "title": "Board deck"}, Score: 7},
		}, nil
	}
	vector := func(_ context.Context, _ string, _ []float32, _ int) ([]retrieval.SearchResult, error) {
		return []retrieval.SearchResult{{ID: "c1", Content: "Churn fell to 3% in Q2.", Score: 0.9}}, nil
	}
	embed := func(context.Context, string) ([]float32, error) { return []float32{0.1, 0.2}, nil }

	provider := &scriptedProvider{steps: []step{reply("Churn improved [R1]. Also [R9] and [X1].\n## Sources")}}
	ex := newTestExecutor(t, provider, nil, nil, nil, Config{})

	plan := models.PlannerOutput{RequiresRetrieval: true, QueryTerms: []string{"churn"}, Sections: []string{"Summary", "Sources"}}
	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    plan,
		Request: models.AssistantRequest{Assistant: models.AssistantGeneral, Input: "How is churn in our deck?", TenantID: "t1", UserID: "u1"},
		BM25:    bm25, Vector: vector, Embed: embed,
	})
	require.NoError(t, err)

	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "deck", resp.Sources[0].DocID)
	assert.Equal(t, "Board deck", resp.Sources[0].Title)
	assert.Equal(t, 1, resp.Quality.UnmappedCitations)
	assert.Equal(t, 1, resp.Quality.UnsupportedCitations)
	summary, _ := resp.Sections.Get(SummarySection)
	assert.Equal(t, "Churn improved [R1]. Also [R9] and [X1].", summary)

	assert.Contains(t, provider.requests[0].Messages[2].Content, "[R1] Board deck")
	assert.Empty(t, provider.requests[0].Tools)
}

func TestExecute_RetrievalFailureDegrades(t *testing.T) {
	failing := func(context.Context, string, []float32, int) ([]retrieval.SearchResult, error) {
		return nil, stderrors.New("pgvector down")
	}
	embed := func(context.Context, string) ([]float32, error) { return []float32{1}, nil }

	provider := &scriptedProvider{steps: []step{reply("## Summary\nNo documents were available.")}}
	ex := newTestExecutor(t, provider, nil, nil, nil, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{RequiresRetrieval: true, Sections: []string{"Summary"}},
		Request: models.AssistantRequest{Assistant: models.AssistantGeneral, Input: "our deck", TenantID: "t1", UserID: "u1"},
		Vector:  failing, Embed: embed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"retrieval"}, resp.Quality.Degraded)
	assert.Empty(t, resp.Sources)
}

func TestExecute_ToolLoopRegistersNewWebSources(t *testing.T) {
	first := []websearch.Result{twoWebResults()[0]}
	second := append(twoWebResults(), websearch.Result{Title: "Pricing page", URL: "https://vendor.io/pricing"})
	search := &stubSearch{results: [][]websearch.Result{first, second}}

	provider := &scriptedProvider{steps: []step{
		callTool(tools.WebSearchTool, `{"query":"vendor pricing"}`),
		reply("## Competitors\nVendor charges more [W3] than the median [W1].\n## Sources"),
	}}
	rec := &stubRecorder{}
	ex := newTestExecutor(t, provider, search.Search, nil, rec, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{RequiresWebSearch: true, QueryTerms: []string{"pricing"}, Sections: []string{"Competitors", "Sources"}},
		Request: models.AssistantRequest{Assistant: models.AssistantMarketAnalysis, Input: "vendor pricing", TenantID: "t1", UserID: "u1"},
	})
	require.NoError(t, err)

	require.Len(t, provider.requests, 2)
	toolMsg := provider.requests[1].Messages[len(provider.requests[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, `"ref":"W1"`)
	assert.Contains(t, toolMsg.Content, `"ref":"W3"`)

	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "https://vendor.io/pricing", resp.Sources[0].URL)
	assert.Equal(t, "https://example.com/pricing", resp.Sources[1].URL)
	assert.Equal(t, 1, rec.metrics[0].ToolInvocations[tools.WebSearchTool])
	assert.Equal(t, 2000+320, resp.Metadata.TokensUsed)
}

func TestExecute_FinancialProjection(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("## Runway\nAbout 15 months.")}}
	ex := newTestExecutor(t, provider, nil, nil, nil, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan: models.PlannerOutput{Sections: []string{"Runway"}},
		Request: models.AssistantRequest{
			Assistant: models.AssistantFinancialProjection,
			Input:     "How long is our runway?",
			TenantID:  "t1",
			UserID:    "u1",
			Extra: &models.Extra{Kind: models.ExtraFinance, Finance: &models.FinanceInputs{
				MonthlyRevenue: 10000, MonthlyGrowthPct: 10, GrossMarginPct: 80, MonthlyFixedCosts: 12000,
				CAC: 600, ARPU: 100, MonthlyChurnPct: 5, CashOnHand: 60000,
			}},
		},
	})
	require.NoError(t, err)

	user := provider.requests[0].Messages[2].Content
	assert.Contains(t, user, "- runway_months: 15.00")
	require.Len(t, provider.requests[0].Tools, 1)
	assert.Equal(t, tools.FinanceTool, provider.requests[0].Tools[0].Name)

	assert.Equal(t, []string{"Runway", DisclaimerSection}, resp.Sections.Names())
	assert.Empty(t, resp.Quality.PolicyIssues)
}

func TestExecute_InvalidFinanceInputsAreSkipped(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("## Runway\nUnknown.")}}
	ex := newTestExecutor(t, provider, nil, nil, nil, Config{})

	_, err := ex.Execute(context.Background(), ExecuteParams{
		Plan: models.PlannerOutput{Sections: []string{"Runway"}, MetricsNeeded: []string{"runway_months"}},
		Request: models.AssistantRequest{
			Assistant: models.AssistantGeneral, Input: "runway?", TenantID: "t1", UserID: "u1",
			Extra: &models.Extra{Kind: models.ExtraFinance, Finance: &models.FinanceInputs{MonthlyRevenue: -5}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, provider.requests[0].Tools)
	assert.NotContains(t, provider.requests[0].Messages[2].Content, "Finance model")
}

func TestExecute_PolicyErrorAddsBanner(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("## Summary\nThis plan is guaranteed to double revenue.")}}
	ex := newTestExecutor(t, provider, nil, nil, nil, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{Sections: []string{"Summary"}},
		Request: models.AssistantRequest{Assistant: models.AssistantGrowthStrategy, Input: "grow", TenantID: "t1", UserID: "u1"},
	})
	require.NoError(t, err)

	summary, _ := resp.Sections.Get("Summary")
	assert.True(t, strings.HasPrefix(summary, "⚠️"))
	assert.True(t, resp.Quality.HasPolicyErrors())
}

func TestExecute_CitationFallbackAppendAll(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("## Competitors\nNo markers here.")}}
	search := &stubSearch{results: [][]websearch.Result{twoWebResults()}}
	ex := newTestExecutor(t, provider, search.Search, nil, nil, Config{CitationFallback: CitationFallbackAppendAll})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{RequiresWebSearch: true, Sections: []string{"Competitors", "Sources"}},
		Request: models.AssistantRequest{Assistant: models.AssistantMarketAnalysis, Input: "competitors", TenantID: "t1", UserID: "u1"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 2)
	assert.True(t, resp.Sections.Has(models.SourcesSection))
}

func TestExecute_ModelFailureReturnsErrorSection(t *testing.T) {
	provider := &scriptedProvider{steps: []step{func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, stderrors.New("invalid api key")
	}}}
	rec := &stubRecorder{}
	ex := newTestExecutor(t, provider, nil, nil, rec, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{Sections: []string{"Summary"}},
		Request: models.AssistantRequest{Assistant: models.AssistantGeneral, Input: "hi", TenantID: "t1", UserID: "u1", RequestID: "req-9"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{ErrorSection}, resp.Sections.Names())
	assert.Zero(t, resp.Metadata.TokensUsed)
	assert.Zero(t, resp.Metadata.Cost)
	assert.Equal(t, "req-9", resp.Metadata.RequestID)
	assert.Empty(t, rec.metrics)
}

func TestExecute_QuotaErrorPropagates(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("unused")}}
	quotaErr := errors.NewQuotaExceededError(usage.ReasonTenantDaily, time.Now())
	ex := newTestExecutor(t, provider, nil, stubQuota{err: quotaErr}, nil, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{Sections: []string{"Summary"}},
		Request: models.AssistantRequest{Assistant: models.AssistantGeneral, Input: "hi", TenantID: "t1", UserID: "u1"},
	})
	assert.Nil(t, resp)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQuotaExceeded))
	assert.Empty(t, provider.requests)
}

func TestExecute_UsageRecordFailurePropagates(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("## Summary\nok")}}
	rec := &stubRecorder{err: errors.NewUsageRecordFailedError(stderrors.New("db down"))}
	ex := newTestExecutor(t, provider, nil, nil, rec, Config{})

	_, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{Sections: []string{"Summary"}},
		Request: models.AssistantRequest{Assistant: models.AssistantGeneral, Input: "hi", TenantID: "t1", UserID: "u1"},
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUsageRecordFailed))
}

func TestExecute_EscalationModel(t *testing.T) {
	provider := &scriptedProvider{steps: []step{reply("## Summary\nok")}}
	ex := newTestExecutor(t, provider, nil, nil, nil, Config{})

	resp, err := ex.Execute(context.Background(), ExecuteParams{
		Plan:    models.PlannerOutput{Sections: []string{"Summary"}, EscalateModel: true},
		Request: models.AssistantRequest{Assistant: models.AssistantGeneral, Input: "hi", TenantID: "t1", UserID: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", provider.requests[0].Model)
	assert.Equal(t, "gpt-4o", resp.Metadata.Model)
}
