// internal/workers/assistant/plan-request/handler.go
package planrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"ai-orchestrator/internal/ai/planner"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/models"
)

const (
	TaskType = "assistant-plan"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Planner interface {
	PlanWithQuotaCheck(ctx context.Context, input models.PlannerInput) (planner.Result, error)
}

type Handler struct {
	config       *Config
	planner      Planner
	errorHandler *errors.ErrorHandler
	logger       Logger
}

func NewHandler(config *Config, p Planner, log Logger) *Handler {
	l := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:       config,
		planner:      p,
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

// Execute plans one request. A request id is assigned here when the caller
// did not send one so both stages log and record under the same id.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	request := *input
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}

	result, err := h.planner.PlanWithQuotaCheck(ctx, request.PlannerInput())
	if err != nil {
		return nil, err
	}

	h.logger.Info("plan created", map[string]interface{}{
		"requestId":         request.RequestID,
		"tenantId":          request.TenantID,
		"assistant":         request.Assistant,
		"fallback":          result.Fallback,
		"requiresRetrieval": result.Plan.RequiresRetrieval,
		"requiresWebSearch": result.Plan.RequiresWebSearch,
		"duration":          time.Since(start).Milliseconds(),
	})

	return &Output{
		Plan:         result.Plan,
		PlanFallback: result.Fallback,
		Request:      request,
	}, nil
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
