package executor

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"ai-orchestrator/internal/ai/retrieval"
	"ai-orchestrator/internal/ai/tools/finance"
	"ai-orchestrator/internal/models"
)

const maxWebQueryTerms = 6

// preparation is everything gathered before the model call. Failures are
// recorded in degraded, never returned.
type preparation struct {
	book      *sourceBook
	retrieval *retrieval.Result
	finance   *finance.Model
	inputs    *models.FinanceInputs
	degraded  []string
}

func (e *Executor) prepare(ctx context.Context, p ExecuteParams) *preparation {
	prep := &preparation{book: newSourceBook()}
	var (
		g        errgroup.Group
		degraded = make(chan string, 3)
	)

	if p.Plan.RequiresRetrieval {
		g.Go(func() error {
			if err := e.retrieve(ctx, p, prep); err != nil {
				e.logger.Warn("Retrieval failed, continuing without document context", map[string]interface{}{
					"tenantId": p.TenantID,
					"error":    err.Error(),
				})
				degraded <- "retrieval"
			}
			return nil
		})
	}

	if p.Plan.RequiresWebSearch {
		g.Go(func() error {
			if err := e.searchWeb(ctx, p, prep); err != nil {
				e.logger.Warn("Web search failed, continuing without web results", map[string]interface{}{
					"tenantId": p.TenantID,
					"error":    err.Error(),
				})
				degraded <- "web_search"
			}
			return nil
		})
	}

	if p.Request.Assistant.IsFinancial() || len(p.Plan.MetricsNeeded) > 0 {
		g.Go(func() error {
			e.computeFinance(p, prep)
			return nil
		})
	}

	_ = g.Wait()
	close(degraded)
	for d := range degraded {
		prep.degraded = append(prep.degraded, d)
	}
	return prep
}

func (e *Executor) retrieve(ctx context.Context, p ExecuteParams, prep *preparation) error {
	if p.Vector == nil || p.Embed == nil {
		e.logger.Warn("Retrieval required but no vector search is configured", map[string]interface{}{
			"tenantId": p.TenantID,
		})
		return nil
	}

	query := retrievalQuery(p)
	var (
		res *retrieval.Result
		err error
	)
	if p.BM25 != nil {
		res, err = retrieval.RetrieveHybrid(ctx, p.TenantID, query, e.cfg.TopK, p.BM25, p.Vector, p.Embed, e.retrievalOpts)
	} else {
		res, err = retrieval.RetrieveVector(ctx, p.TenantID, query, e.cfg.TopK, p.Vector, p.Embed, e.retrievalOpts)
	}
	if err != nil {
		return err
	}

	prep.retrieval = res
	prep.book.setChunks(res.Context.Chunks)
	e.logger.Debug("Retrieval complete", map[string]interface{}{
		"tenantId":   p.TenantID,
		"fusion":     res.Stats.Fusion,
		"chunksUsed": res.Stats.ChunksUsed,
		"truncated":  res.Stats.ChunksTruncated,
	})
	return nil
}

func (e *Executor) searchWeb(ctx context.Context, p ExecuteParams, prep *preparation) error {
	if e.search == nil {
		e.logger.Warn("Web search required but not configured", map[string]interface{}{"tenantId": p.TenantID})
		return nil
	}
	results, err := e.search(ctx, p.TenantID, webQuery(p), e.cfg.WebResults)
	if err != nil {
		return err
	}
	prep.book.addWeb(results)
	return nil
}

func (e *Executor) computeFinance(p ExecuteParams, prep *preparation) {
	inputs, ok := p.Request.Extra.FinanceInputs()
	if !ok {
		e.logger.Debug("No finance inputs on request, skipping finance model", nil)
		return
	}
	if err := finance.Validate(inputs); err != nil {
		e.logger.Debug("Finance inputs invalid, skipping finance model", map[string]interface{}{"error": err.Error()})
		return
	}
	model, err := finance.Compute(inputs, p.Plan.MetricsNeeded)
	if err != nil {
		e.logger.Debug("Finance model failed", map[string]interface{}{"error": err.Error()})
		return
	}
	prep.finance = model
	prep.inputs = inputs
}

func retrievalQuery(p ExecuteParams) string {
	if len(p.Plan.QueryTerms) > 0 {
		return strings.Join(p.Plan.QueryTerms, " ")
	}
	return p.Request.Input
}

// webQuery uses single-word plan terms, which read better to a search engine
// than the bigrams.
func webQuery(p ExecuteParams) string {
	var words []string
	for _, t := range p.Plan.QueryTerms {
		if !strings.Contains(t, " ") {
			words = append(words, t)
		}
		if len(words) == maxWebQueryTerms {
			break
		}
	}
	if len(words) == 0 {
		return p.Request.Input
	}
	return strings.Join(words, " ")
}
