// Package llm wraps an OpenAI-compatible provider with a circuit breaker,
// idempotency-key deduplication, retry with backoff and cost accounting.
package llm

import (
	"context"
	stderrors "errors"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/pkg/registry"
)

type Config struct {
	MiniModel       string
	EscalationModel string
	EmbeddingModel  string
	Retry           RetryConfig
	Timeout         time.Duration
	IdempotencyTTL  time.Duration
	MaxToolCalls    int
	PromptCaching   bool
}

// ConfigFromSettings maps the llm config section onto client settings.
func ConfigFromSettings(c config.LLMConfig) Config {
	return Config{
		MiniModel:       c.MiniModel,
		EscalationModel: c.EscalationModel,
		EmbeddingModel:  c.EmbeddingModel,
		Retry: RetryConfig{
			Attempts:  c.MaxRetries,
			BaseDelay: config.GetDuration(c.RetryBaseMs),
			MaxDelay:  config.GetDuration(c.RetryMaxMs),
		},
		Timeout:        config.GetDuration(c.TimeoutMs),
		IdempotencyTTL: config.GetDuration(c.IdempotencyTTLMs),
		MaxToolCalls:   c.MaxToolCalls,
		PromptCaching:  c.PromptCaching,
	}
}

// Options are per-call settings. Zero values fall back to client defaults.
type Options struct {
	Model           string
	MaxOutputTokens int
	Temperature     *float64
	IdempotencyKey  string
	PromptCacheKey  string
	MaxToolCalls    int

	// telemetry labels
	Assistant string
	TenantID  string
}

type ChatResult struct {
	Model          string
	Text           string
	TokensIn       int
	CachedTokensIn int
	TokensOut      int
	CostCents      float64
	LatencyMs      int64
}

func (r *ChatResult) add(o *ChatResult) {
	r.TokensIn += o.TokensIn
	r.CachedTokensIn += o.CachedTokensIn
	r.TokensOut += o.TokensOut
	r.CostCents += o.CostCents
	r.LatencyMs += o.LatencyMs
}

type Client struct {
	provider    Provider
	registry    *registry.ModelRegistry
	cfg         Config
	breaker     *Breaker
	idempotency IdempotencyStore
	obs         *observability.Observability
	logger      logger.Logger
}

func NewClient(
	provider Provider,
	reg *registry.ModelRegistry,
	breaker *Breaker,
	idempotency IdempotencyStore,
	cfg Config,
	obs *observability.Observability,
	log logger.Logger,
) *Client {
	if reg == nil {
		reg = registry.DefaultRegistry()
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 5 * time.Minute
	}
	if idempotency == nil {
		idempotency = NewMemoryIdempotencyStore(cfg.IdempotencyTTL, 0)
	}
	if breaker == nil {
		breaker = NewBreaker(5, 30*time.Second)
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		provider:    provider,
		registry:    reg,
		cfg:         cfg,
		breaker:     breaker,
		idempotency: idempotency,
		obs:         obs,
		logger:      log.WithFields(map[string]interface{}{"component": "llm"}),
	}
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) Registry() *registry.ModelRegistry {
	return c.registry
}

func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// Chat runs a single completion.
func (c *Client) Chat(ctx context.Context, conv Conversation, opts Options) (*ChatResult, error) {
	if err := c.admit(ctx, opts); err != nil {
		return nil, err
	}
	res, _, err := c.complete(ctx, conv, opts, nil, nil)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// admit runs the once-per-public-call checks: breaker, then idempotency key.
func (c *Client) admit(ctx context.Context, opts Options) error {
	if err := c.breaker.Allow(); err != nil {
		metrics.LLMRequests.WithLabelValues(c.model(opts), "circuit_open").Inc()
		return err
	}
	if opts.IdempotencyKey == "" {
		return nil
	}

	fresh, err := c.idempotency.Reserve(ctx, opts.IdempotencyKey, c.cfg.IdempotencyTTL)
	if err != nil {
		// dedup is best effort; a broken store must not block traffic
		c.logger.Warn("Idempotency store unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if !fresh {
		metrics.LLMRequests.WithLabelValues(c.model(opts), "duplicate").Inc()
		return errors.NewDuplicateRequestError(opts.IdempotencyKey)
	}
	return nil
}

func (c *Client) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.cfg.MiniModel
}

// complete performs one upstream completion with retries and records the
// outcome on the breaker.
func (c *Client) complete(ctx context.Context, conv Conversation, opts Options, tools []ToolSpec, format *ResponseFormat) (*ChatResult, *CompletionResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, nil, err
	}

	model := c.model(opts)
	spec, known := c.registry.Lookup(model)
	if !known {
		c.logger.Warn("Model not in registry, using fallback pricing", map[string]interface{}{"model": model})
	}

	req := CompletionRequest{
		Model:          model,
		Messages:       conv.Messages(),
		MaxTokens:      spec.CapOutput(opts.MaxOutputTokens),
		Temperature:    opts.Temperature,
		Tools:          tools,
		ResponseFormat: format,
	}
	if c.cfg.PromptCaching && spec.SupportsPromptCache {
		req.PromptCacheKey = opts.PromptCacheKey
	}

	start := time.Now()
	resp, attempts, err := withRetry(ctx, c.cfg.Retry, func(ctx context.Context) (*CompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return c.provider.Complete(callCtx, req)
	})
	latency := time.Since(start)

	if attempts > 1 {
		metrics.LLMRetries.WithLabelValues(model).Add(float64(attempts - 1))
	}

	if err != nil {
		if !stderrors.Is(ctx.Err(), context.Canceled) {
			c.breaker.RecordFailure()
		}
		metrics.LLMRequests.WithLabelValues(model, "failure").Inc()
		c.logger.Error("LLM call failed", map[string]interface{}{
			"model":     model,
			"attempts":  attempts,
			"latencyMs": latency.Milliseconds(),
			"error":     err.Error(),
		})
		if isTimeout(err) {
			return nil, nil, errors.NewLLMTimeoutError(err)
		}
		return nil, nil, errors.NewLLMUpstreamFailedError(err, IsRetryable(err))
	}

	c.breaker.RecordSuccess()

	res := &ChatResult{
		Model:          model,
		Text:           resp.Text,
		TokensIn:       resp.TokensIn,
		CachedTokensIn: resp.CachedTokensIn,
		TokensOut:      resp.TokensOut,
		CostCents:      spec.CostCents(resp.TokensIn, resp.CachedTokensIn, resp.TokensOut),
		LatencyMs:      latency.Milliseconds(),
	}
	c.emitUsage(ctx, opts, res, latency)
	return res, resp, nil
}

func (c *Client) emitUsage(ctx context.Context, opts Options, res *ChatResult, latency time.Duration) {
	metrics.LLMRequests.WithLabelValues(res.Model, "success").Inc()
	metrics.LLMLatency.WithLabelValues(res.Model).Observe(latency.Seconds())
	metrics.LLMTokens.WithLabelValues(res.Model, "in").Add(float64(res.TokensIn))
	metrics.LLMTokens.WithLabelValues(res.Model, "out").Add(float64(res.TokensOut))
	metrics.LLMCostCents.WithLabelValues(res.Model).Add(res.CostCents)
	c.obs.RecordUsage(ctx, res.Model, opts.Assistant, res.TokensIn, res.TokensOut, res.CostCents, latency)

	c.logger.Debug("LLM call completed", map[string]interface{}{
		"model":          res.Model,
		"assistant":      opts.Assistant,
		"tenantId":       opts.TenantID,
		"tokensIn":       res.TokensIn,
		"cachedTokensIn": res.CachedTokensIn,
		"tokensOut":      res.TokensOut,
		"costCents":      res.CostCents,
		"latencyMs":      res.LatencyMs,
	})
}

// Embed returns one vector per input using the embedding model. It shares
// the breaker and retry policy with chat calls.
func (c *Client) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	vectors, _, err := withRetry(ctx, c.cfg.Retry, func(ctx context.Context) ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return c.provider.Embed(callCtx, c.cfg.EmbeddingModel, input)
	})
	if err != nil {
		if !stderrors.Is(ctx.Err(), context.Canceled) {
			c.breaker.RecordFailure()
		}
		if isTimeout(err) {
			return nil, errors.NewLLMTimeoutError(err)
		}
		return nil, errors.NewLLMUpstreamFailedError(err, IsRetryable(err))
	}

	c.breaker.RecordSuccess()
	return vectors, nil
}
