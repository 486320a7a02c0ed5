// Package planner turns a request into a PlannerOutput with one cheap
// structured model call, falling back to regex heuristics.
package planner

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/usage"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/internal/models"
)

const defaultMaxOutputTokens = 800

type QuotaChecker interface {
	AssertQuotasOK(ctx context.Context, tenantID, userID string, plannedTokens int64, plannedCostCents float64) error
}

type Config struct {
	MaxOutputTokens int
}

type Planner struct {
	client     *llm.Client
	quota      QuotaChecker
	heuristics HeuristicDeriver
	cfg        Config
	obs        *observability.Observability
	logger     logger.Logger
}

// Result is a plan plus how it was produced. Usage is zero for a fallback
// that never reached the model.
type Result struct {
	Plan           models.PlannerOutput `json:"plan"`
	Usage          llm.ChatResult       `json:"-"`
	Fallback       bool                 `json:"fallback"`
	FallbackReason string               `json:"fallbackReason,omitempty"`
}

// NewPlanner uses RegexHeuristics when heuristics is nil.
func NewPlanner(client *llm.Client, quota QuotaChecker, heuristics HeuristicDeriver, cfg Config, obs *observability.Observability, log logger.Logger) *Planner {
	if heuristics == nil {
		heuristics = RegexHeuristics{}
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	return &Planner{
		client:     client,
		quota:      quota,
		heuristics: heuristics,
		cfg:        cfg,
		obs:        obs,
		logger:     log.WithFields(map[string]interface{}{"component": "planner"}),
	}
}

// Plan never fails for valid input: any model error yields the heuristic plan.
func (p *Planner) Plan(ctx context.Context, input models.PlannerInput) Result {
	ctx, span := p.obs.StartSpan(ctx, "planner.plan",
		attribute.String("assistant", string(input.Assistant)),
		attribute.String("tenant_id", input.TenantID),
	)
	defer span.End()

	start := time.Now()
	h := p.heuristics.DeriveHeuristics(input)

	result, err := p.planWithModel(ctx, input, h)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planner fell back to heuristics")
		p.logger.Warn("Planner model call failed, using heuristic plan", map[string]interface{}{
			"assistant": input.Assistant,
			"tenantId":  input.TenantID,
			"error":     err.Error(),
		})
		return Result{Plan: h.Plan(taskFor(input)), Fallback: true, FallbackReason: err.Error()}
	}

	span.SetAttributes(
		attribute.Bool("requires_retrieval", result.Plan.RequiresRetrieval),
		attribute.Bool("requires_web_search", result.Plan.RequiresWebSearch),
		attribute.Bool("escalate_model", result.Plan.EscalateModel),
	)
	p.logger.Info("Plan created", map[string]interface{}{
		"assistant":         input.Assistant,
		"tenantId":          input.TenantID,
		"requiresRetrieval": result.Plan.RequiresRetrieval,
		"requiresWebSearch": result.Plan.RequiresWebSearch,
		"sections":          len(result.Plan.Sections),
		"escalate":          result.Plan.EscalateModel,
		"duration":          time.Since(start).Milliseconds(),
	})
	return *result
}

func (p *Planner) planWithModel(ctx context.Context, input models.PlannerInput, h Heuristics) (*Result, error) {
	user, err := buildUserMessage(input, h)
	if err != nil {
		return nil, err
	}

	temperature := 0.0
	conv := llm.NewConversation(
		llm.SystemMessage(systemPrompt),
		llm.DeveloperMessage(developerPrompt),
		llm.UserMessage(user),
	)
	opts := llm.Options{
		Model:           p.client.Config().MiniModel,
		MaxOutputTokens: p.cfg.MaxOutputTokens,
		Temperature:     &temperature,
		PromptCacheKey:  "planner:" + string(input.Assistant),
		Assistant:       string(input.Assistant),
		TenantID:        input.TenantID,
	}

	res, err := llm.ChatStructured[models.PlannerOutput](ctx, p.client, planSchema, "assistant_plan", conv, opts)
	if err != nil {
		return nil, err
	}

	plan := postProcess(res.Data, input, h)
	return &Result{Plan: plan, Usage: res.Usage}, nil
}

// postProcess enforces the invariants the model might miss.
func postProcess(plan models.PlannerOutput, input models.PlannerInput, h Heuristics) models.PlannerOutput {
	if input.Assistant == models.AssistantMarketAnalysis {
		plan.RequiresWebSearch = true
	}
	if strings.TrimSpace(plan.Task) == "" {
		plan.Task = taskFor(input)
	}
	if len(plan.Sections) == 0 {
		plan.Sections = append([]string{}, h.Sections...)
	}
	if len(plan.QueryTerms) > maxQueryTerms {
		plan.QueryTerms = plan.QueryTerms[:maxQueryTerms]
	}
	if len(plan.MetricsNeeded) == 0 && len(h.MetricsNeeded) > 0 {
		plan.MetricsNeeded = append([]string{}, h.MetricsNeeded...)
	}
	plan.EnsureSources()
	return plan
}

func taskFor(input models.PlannerInput) string {
	return "Answer the " + strings.ReplaceAll(string(input.Assistant), "_", " ") + " request"
}

// PlanWithQuotaCheck validates input and checks the planner call's estimated
// usage against quota before planning. Quota and validation errors are
// returned as is.
func (p *Planner) PlanWithQuotaCheck(ctx context.Context, input models.PlannerInput) (Result, error) {
	if err := input.Validate(); err != nil {
		return Result{}, err
	}

	if p.quota != nil {
		est := usage.EstimateUsage(p.client.Registry(), p.client.Config().MiniModel,
			utf8.RuneCountInString(input.Input), 0, p.cfg.MaxOutputTokens)
		if err := p.quota.AssertQuotasOK(ctx, input.TenantID, input.UserID, est.EstimatedTokens, est.EstimatedCostCents); err != nil {
			return Result{}, err
		}
	}

	return p.Plan(ctx, input), nil
}
