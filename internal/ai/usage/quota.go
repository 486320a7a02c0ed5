package usage

import (
	"context"
	"fmt"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
)

// Limits of zero are not enforced.
type Limits struct {
	DailyTokensPerUser     int64   `json:"dailyTokensPerUser"`
	DailyTokensPerTenant   int64   `json:"dailyTokensPerTenant"`
	MaxTokensPerRequest    int64   `json:"maxTokensPerRequest"`
	MaxCostCentsPerRequest float64 `json:"maxCostCentsPerRequest"`
}

func LimitsFromConfig(c config.QuotaConfig) Limits {
	return Limits{
		DailyTokensPerUser:     c.DailyTokensPerUser,
		DailyTokensPerTenant:   c.DailyTokensPerTenant,
		MaxTokensPerRequest:    c.MaxTokensPerRequest,
		MaxCostCentsPerRequest: c.MaxCostCentsPerRequest,
	}
}

// Snapshot is the usage seen at check time. Daily totals are zero when the
// check failed before reading them.
type Snapshot struct {
	UserTokens       int64   `json:"userTokens"`
	TenantTokens     int64   `json:"tenantTokens"`
	PlannedTokens    int64   `json:"plannedTokens"`
	PlannedCostCents float64 `json:"plannedCostCents"`
	Limits           Limits  `json:"limits"`
}

const (
	ReasonRequestTokens = "request_tokens"
	ReasonRequestCost   = "request_cost"
	ReasonUserDaily     = "user_daily_tokens"
	ReasonTenantDaily   = "tenant_daily_tokens"
)

// QuotaError is returned when a request would exceed a limit. It unwraps to a
// QUOTA_EXCEEDED StandardError carrying the same reset time.
type QuotaError struct {
	Reason  string
	ResetAt time.Time
	Usage   Snapshot
	std     *errors.StandardError
}

func newQuotaError(reason string, resetAt time.Time, snap Snapshot) *QuotaError {
	std := errors.NewQuotaExceededError(reason, resetAt).
		WithMetadata("quotaReason", reason).
		WithMetadata("userTokens", snap.UserTokens).
		WithMetadata("tenantTokens", snap.TenantTokens).
		WithMetadata("plannedTokens", snap.PlannedTokens)
	return &QuotaError{Reason: reason, ResetAt: resetAt, Usage: snap, std: std}
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded (%s), resets at %s", e.Reason, e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaError) Unwrap() error {
	return e.std
}

// UsageReader sums recorded tokens over [from, to).
type UsageReader interface {
	SumTokensByUser(ctx context.Context, userID string, from, to time.Time) (int64, error)
	SumTokensByTenant(ctx context.Context, tenantID string, from, to time.Time) (int64, error)
}

type QuotaChecker struct {
	store    UsageReader
	limits   Limits
	softFail bool
	alerts   *AlertNotifier
	logger   logger.Logger
	now      func() time.Time
}

func NewQuotaChecker(store UsageReader, limits Limits, soft config.SoftFailConfig, alerts *AlertNotifier, log logger.Logger) *QuotaChecker {
	return &QuotaChecker{
		store:    store,
		limits:   limits,
		softFail: soft.QuotaCheck,
		alerts:   alerts,
		logger:   log.WithFields(map[string]interface{}{"component": "quota"}),
		now:      time.Now,
	}
}

func (q *QuotaChecker) Limits() Limits {
	return q.limits
}

// DayWindow returns the UTC calendar day containing t as [start, end).
func DayWindow(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// AssertQuotasOK fails if the planned usage would push any limit past its
// cap. Reaching a cap exactly is allowed. A store error denies the request
// unless quota soft-fail is enabled.
func (q *QuotaChecker) AssertQuotasOK(ctx context.Context, tenantID, userID string, plannedTokens int64, plannedCostCents float64) error {
	dayStart, resetAt := DayWindow(q.now())
	snap := Snapshot{PlannedTokens: plannedTokens, PlannedCostCents: plannedCostCents, Limits: q.limits}

	deny := func(reason string) error {
		metrics.QuotaDenials.WithLabelValues(reason).Inc()
		q.logger.Warn("Quota exceeded", map[string]interface{}{
			"tenantId":      tenantID,
			"userId":        userID,
			"reason":        reason,
			"plannedTokens": plannedTokens,
			"userTokens":    snap.UserTokens,
			"tenantTokens":  snap.TenantTokens,
		})
		return newQuotaError(reason, resetAt, snap)
	}

	if q.limits.MaxTokensPerRequest > 0 && plannedTokens > q.limits.MaxTokensPerRequest {
		return deny(ReasonRequestTokens)
	}
	if q.limits.MaxCostCentsPerRequest > 0 && plannedCostCents > q.limits.MaxCostCentsPerRequest {
		return deny(ReasonRequestCost)
	}

	if q.limits.DailyTokensPerUser > 0 {
		used, err := q.store.SumTokensByUser(ctx, userID, dayStart, resetAt)
		if err != nil {
			return q.storeFailure(err, tenantID, userID)
		}
		snap.UserTokens = used
		if used+plannedTokens > q.limits.DailyTokensPerUser {
			return deny(ReasonUserDaily)
		}
	}

	if q.limits.DailyTokensPerTenant > 0 {
		used, err := q.store.SumTokensByTenant(ctx, tenantID, dayStart, resetAt)
		if err != nil {
			return q.storeFailure(err, tenantID, userID)
		}
		snap.TenantTokens = used
		if used+plannedTokens > q.limits.DailyTokensPerTenant {
			return deny(ReasonTenantDaily)
		}
		q.alerts.MaybeAlert(ctx, tenantID, used+plannedTokens, q.limits.DailyTokensPerTenant)
	}

	return nil
}

func (q *QuotaChecker) storeFailure(err error, tenantID, userID string) error {
	fields := map[string]interface{}{
		"tenantId": tenantID,
		"userId":   userID,
		"error":    err.Error(),
	}
	if q.softFail {
		q.logger.Warn("Quota check failed, allowing request (soft-fail)", fields)
		return nil
	}
	q.logger.Error("Quota check failed, denying request", fields)
	return errors.NewQuotaCheckFailedError(err)
}
