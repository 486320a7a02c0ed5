// Package executor runs a plan: it gathers document, web and finance context,
// makes the tool-enabled model call, parses the answer into sections, maps
// citations to sources and applies policy checks.
package executor

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/retrieval"
	"ai-orchestrator/internal/ai/tools/finance"
	"ai-orchestrator/internal/ai/tools/websearch"
	"ai-orchestrator/internal/ai/usage"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/internal/models"
)

const (
	CitationFallbackNone      = "none"
	CitationFallbackAppendAll = "append_all"

	ErrorSection = "Error"
)

type QuotaChecker interface {
	AssertQuotasOK(ctx context.Context, tenantID, userID string, plannedTokens int64, plannedCostCents float64) error
}

type UsageRecorder interface {
	Record(ctx context.Context, m models.UsageMetric) (bool, error)
}

type Config struct {
	MaxOutputTokens  int
	TopK             int
	WebResults       int
	CitationFallback string
}

// ExecuteParams carries one request. The retrieval functions are optional;
// without Vector and Embed a plan that needs retrieval runs without it.
type ExecuteParams struct {
	Plan     models.PlannerOutput
	Request  models.AssistantRequest
	TenantID string
	UserID   string
	BM25     retrieval.BM25QueryFunc
	Vector   retrieval.VectorQueryFunc
	Embed    retrieval.EmbedFunc
}

type Executor struct {
	client        *llm.Client
	quota         QuotaChecker
	recorder      UsageRecorder
	search        websearch.SearchFunc
	retrievalOpts retrieval.Options
	cfg           Config
	obs           *observability.Observability
	logger        logger.Logger
}

// NewExecutor accepts nil quota, recorder and search; the matching step is
// then skipped.
func NewExecutor(
	client *llm.Client,
	quota QuotaChecker,
	recorder UsageRecorder,
	search websearch.SearchFunc,
	retrievalOpts retrieval.Options,
	cfg Config,
	obs *observability.Observability,
	log logger.Logger,
) *Executor {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2000
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = 5
	}
	if cfg.CitationFallback == "" {
		cfg.CitationFallback = CitationFallbackNone
	}
	return &Executor{
		client:        client,
		quota:         quota,
		recorder:      recorder,
		search:        search,
		retrievalOpts: retrievalOpts,
		cfg:           cfg,
		obs:           obs,
		logger:        log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Execute returns an error only for quota denials and, when usage recording
// is not soft-fail, for a failed usage write. Every other failure becomes a
// response with a single Error section and zero usage.
func (e *Executor) Execute(ctx context.Context, p ExecuteParams) (*models.AssistantResponse, error) {
	start := time.Now()
	if p.TenantID == "" {
		p.TenantID = p.Request.TenantID
	}
	if p.UserID == "" {
		p.UserID = p.Request.UserID
	}
	requestID := p.Request.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := e.obs.StartSpan(ctx, "executor.execute",
		attribute.String("assistant", string(p.Request.Assistant)),
		attribute.String("tenant_id", p.TenantID),
		attribute.String("request_id", requestID),
	)
	defer span.End()

	model := e.model(p.Plan)

	if err := e.preflight(ctx, p, model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quota")
		return nil, err
	}

	resp, res, err := e.run(ctx, p, model, requestID, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		e.logger.Error("Execution failed", map[string]interface{}{
			"tenantId":  p.TenantID,
			"requestId": requestID,
			"assistant": p.Request.Assistant,
			"error":     err.Error(),
		})
		return errorResponse(p.Request.Assistant, requestID, err, start), nil
	}

	if e.recorder != nil {
		metric := models.UsageMetric{
			TenantID:        p.TenantID,
			UserID:          p.UserID,
			Assistant:       p.Request.Assistant,
			RequestID:       requestID,
			Model:           res.Model,
			TokensIn:        res.TokensIn,
			TokensOut:       res.TokensOut,
			CostCents:       res.CostCents,
			LatencyMs:       resp.Metadata.LatencyMs,
			ToolInvocations: res.ToolInvocations,
		}
		if _, err := e.recorder.Record(ctx, metric); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.Int("tokens_used", resp.Metadata.TokensUsed),
		attribute.Int("sources", len(resp.Sources)),
		attribute.Int("unmapped_citations", resp.Quality.UnmappedCitations),
	)
	return resp, nil
}

func (e *Executor) model(plan models.PlannerOutput) string {
	cfg := e.client.Config()
	if plan.EscalateModel && cfg.EscalationModel != "" {
		return cfg.EscalationModel
	}
	return cfg.MiniModel
}

func (e *Executor) preflight(ctx context.Context, p ExecuteParams, model string) error {
	if e.quota == nil {
		return nil
	}
	contextTokens := 0
	if p.Plan.RequiresRetrieval {
		contextTokens = e.retrievalOpts.ContextMaxTokens
		if contextTokens <= 0 {
			contextTokens = retrieval.DefaultOptions().ContextMaxTokens
		}
	}
	est := usage.EstimateUsage(e.client.Registry(), model, utf8.RuneCountInString(p.Request.Input), contextTokens, e.cfg.MaxOutputTokens)
	return e.quota.AssertQuotasOK(ctx, p.TenantID, p.UserID, est.EstimatedTokens, est.EstimatedCostCents)
}

func (e *Executor) run(ctx context.Context, p ExecuteParams, model, requestID string, start time.Time) (*models.AssistantResponse, *llm.ToolsResult, error) {
	prep := e.prepare(ctx, p)

	var (
		specs    []llm.ToolSpec
		handlers = map[string]llm.ToolHandler{}
	)
	if p.Plan.RequiresWebSearch && e.search != nil {
		spec, handler := websearch.NewTool(e.search, p.TenantID, prep.book.addWeb)
		specs = append(specs, spec)
		handlers[spec.Name] = handler
	}
	if prep.finance != nil {
		spec, handler := finance.Tool(prep.inputs)
		specs = append(specs, spec)
		handlers[spec.Name] = handler
	}

	conv := buildConversation(p, prep, len(specs) > 0)
	res, err := e.client.ChatWithTools(ctx, conv, specs, handlers, llm.Options{
		Model:           model,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
		IdempotencyKey:  p.Request.IdempotencyKey,
		PromptCacheKey:  "executor:" + string(p.Request.Assistant),
		Assistant:       string(p.Request.Assistant),
		TenantID:        p.TenantID,
	})
	if err != nil {
		return nil, nil, err
	}

	resp := e.assemble(p, prep, res, requestID)
	resp.Metadata.LatencyMs = time.Since(start).Milliseconds()
	return resp, res, nil
}

func (e *Executor) assemble(p ExecuteParams, prep *preparation, res *llm.ToolsResult, requestID string) *models.AssistantResponse {
	sections := ParseSections(res.Text)
	rag, web := prep.book.snapshot()
	sources, stats := MapCitations(res.Text, rag, web)

	if stats.Unmapped > 0 {
		metrics.UnmappedCitations.Add(float64(stats.Unmapped))
		e.logger.Warn("Model cited sources that do not exist", map[string]interface{}{
			"tenantId":  p.TenantID,
			"requestId": requestID,
			"unmapped":  stats.Unmapped,
			"ragCount":  len(rag),
			"webCount":  len(web),
		})
	}
	if stats.Mapped == 0 && e.cfg.CitationFallback == CitationFallbackAppendAll {
		sources = append(append(sources, rag...), web...)
	}
	if sources == nil {
		sources = []models.AssistantSource{}
	}

	if len(sources) > 0 && p.Plan.HasSection(models.SourcesSection) {
		if content, _ := sections.Get(models.SourcesSection); strings.TrimSpace(content) == "" {
			sections.Set(models.SourcesSection, renderSources(sources))
		}
	}

	missing := missingSections(p.Plan.Sections, sections)
	if len(missing) > 0 {
		e.logger.Warn("Response is missing planned sections", map[string]interface{}{
			"requestId": requestID,
			"missing":   missing,
		})
	}

	applyDisclaimer(p.Request.Assistant, &sections)
	issues := EvaluatePolicy(PolicyInput{
		Assistant:   p.Request.Assistant,
		Raw:         res.Text,
		Sections:    sections,
		Unsupported: stats.Unsupported,
		Missing:     missing,
	})
	if applyBanner(issues, &sections) {
		e.logger.Warn("Response failed policy checks", map[string]interface{}{
			"requestId": requestID,
			"issues":    len(issues),
		})
	}

	degraded := prep.degraded
	if res.Truncated {
		degraded = append(degraded, "tool_loop_truncated")
	}

	return &models.AssistantResponse{
		Assistant:      p.Request.Assistant,
		Sections:       sections,
		Sources:        sources,
		RawModelOutput: res.Text,
		Metadata: models.ResponseMetadata{
			Model:      res.Model,
			TokensUsed: res.TokensIn + res.TokensOut,
			Cost:       res.CostCents,
			RequestID:  requestID,
			Truncated:  res.Truncated,
		},
		Quality: models.Quality{
			UnmappedCitations:    stats.Unmapped,
			UnsupportedCitations: stats.Unsupported,
			MissingSections:      missing,
			PolicyIssues:         issues,
			Degraded:             degraded,
		},
	}
}

func errorResponse(assistant models.AssistantType, requestID string, err error, start time.Time) *models.AssistantResponse {
	std := errors.Normalize(err)
	var sections models.Sections
	sections.Set(ErrorSection, "The assistant could not complete this request ("+string(std.Code)+": "+std.Message+"). Please try again.")

	return &models.AssistantResponse{
		Assistant: assistant,
		Sections:  sections,
		Sources:   []models.AssistantSource{},
		Metadata: models.ResponseMetadata{
			LatencyMs: time.Since(start).Milliseconds(),
			RequestID: requestID,
		},
		Quality: models.Quality{Degraded: []string{"execution_failed"}},
	}
}
