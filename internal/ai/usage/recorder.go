package usage

import (
	"context"
	"math/rand"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/models"
)

type UsageWriter interface {
	Insert(ctx context.Context, m models.UsageMetric) error
}

// Recorder writes usage rows, optionally sampled.
type Recorder struct {
	writer     UsageWriter
	sampleRate float64
	softFail   bool
	logger     logger.Logger
	random     func() float64
	now        func() time.Time
}

// NewRecorder clamps sampleRate into [0, 1]. A rate of 0 disables recording.
func NewRecorder(writer UsageWriter, sampleRate float64, soft config.SoftFailConfig, log logger.Logger) *Recorder {
	if sampleRate < 0 {
		sampleRate = 0
	}
	if sampleRate > 1 {
		sampleRate = 1
	}
	return &Recorder{
		writer:     writer,
		sampleRate: sampleRate,
		softFail:   soft.UsageRecording,
		logger:     log.WithFields(map[string]interface{}{"component": "usage"}),
		random:     rand.Float64,
		now:        time.Now,
	}
}

// Record persists m unless it is sampled out. Returns whether a row was
// written. Write failures are logged and swallowed under soft-fail.
func (r *Recorder) Record(ctx context.Context, m models.UsageMetric) (bool, error) {
	if r.sampleRate < 1 && r.random() >= r.sampleRate {
		return false, nil
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now().UTC()
	}

	if err := r.writer.Insert(ctx, m); err != nil {
		fields := map[string]interface{}{
			"tenantId":  m.TenantID,
			"requestId": m.RequestID,
			"model":     m.Model,
			"error":     err.Error(),
		}
		if r.softFail {
			r.logger.Warn("Usage recording failed (soft-fail)", fields)
			return false, nil
		}
		r.logger.Error("Usage recording failed", fields)
		return false, errors.NewUsageRecordFailedError(err)
	}

	r.logger.Debug("Usage recorded", map[string]interface{}{
		"tenantId":  m.TenantID,
		"requestId": m.RequestID,
		"tokens":    m.TotalTokens(),
		"costCents": m.CostCents,
	})
	return true, nil
}
