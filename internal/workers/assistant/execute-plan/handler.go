// internal/workers/assistant/execute-plan/handler.go
package executeplan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"ai-orchestrator/internal/ai/executor"
	"ai-orchestrator/internal/ai/retrieval"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/models"
)

const (
	TaskType = "assistant-execute"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Executor interface {
	Execute(ctx context.Context, p executor.ExecuteParams) (*models.AssistantResponse, error)
}

// Retrieval holds the tenant document search backends. Any field may be nil.
type Retrieval struct {
	BM25   retrieval.BM25QueryFunc
	Vector retrieval.VectorQueryFunc
	Embed  retrieval.EmbedFunc
}

type Handler struct {
	config       *Config
	executor     Executor
	retrieval    Retrieval
	errorHandler *errors.ErrorHandler
	logger       Logger
}

func NewHandler(config *Config, ex Executor, r Retrieval, log Logger) *Handler {
	l := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:       config,
		executor:     ex,
		retrieval:    r,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, errors.NewValidationFailedError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := input.Request.PlannerInput().Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := h.executor.Execute(ctx, executor.ExecuteParams{
		Plan:     input.Plan,
		Request:  input.Request,
		TenantID: input.Request.TenantID,
		UserID:   input.Request.UserID,
		BM25:     h.retrieval.BM25,
		Vector:   h.retrieval.Vector,
		Embed:    h.retrieval.Embed,
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"requestId":  resp.Metadata.RequestID,
		"tenantId":   input.Request.TenantID,
		"assistant":  input.Request.Assistant,
		"model":      resp.Metadata.Model,
		"tokensUsed": resp.Metadata.TokensUsed,
		"sources":    len(resp.Sources),
		"duration":   time.Since(start).Milliseconds(),
	}
	if resp.Sections.Has(executor.ErrorSection) {
		h.logger.Warn("assistant returned an error response", fields)
	} else {
		h.logger.Info("assistant response ready", fields)
	}

	return &Output{Response: resp}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)

	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, err)
}
