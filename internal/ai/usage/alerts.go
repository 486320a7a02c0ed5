package usage

import (
	"context"
	"fmt"
	"time"

	"ai-orchestrator/internal/common/logger"
)

type Publisher interface {
	PublishText(ctx context.Context, topicARN, subject, message string) (string, error)
}

type Mailer interface {
	SendText(ctx context.Context, from, to, subject, body string) (string, error)
}

// Deduper reserves a key for ttl. It returns false if the key is held.
type Deduper interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type AlertConfig struct {
	ThresholdPct float64
	TopicARN     string
	EmailFrom    string
	EmailTo      string
}

// AlertNotifier warns operators once per tenant per UTC day when tenant
// usage crosses ThresholdPct of the daily limit. A nil notifier is a no-op.
type AlertNotifier struct {
	cfg       AlertConfig
	publisher Publisher
	mailer    Mailer
	dedupe    Deduper
	logger    logger.Logger
	now       func() time.Time
}

// NewAlertNotifier returns nil when no threshold or channel is configured.
func NewAlertNotifier(cfg AlertConfig, publisher Publisher, mailer Mailer, dedupe Deduper, log logger.Logger) *AlertNotifier {
	if cfg.ThresholdPct <= 0 || dedupe == nil {
		return nil
	}
	if publisher == nil && mailer == nil {
		return nil
	}
	return &AlertNotifier{
		cfg:       cfg,
		publisher: publisher,
		mailer:    mailer,
		dedupe:    dedupe,
		logger:    log.WithFields(map[string]interface{}{"component": "quota-alerts"}),
		now:       time.Now,
	}
}

// MaybeAlert never fails the caller. Delivery errors are logged.
func (a *AlertNotifier) MaybeAlert(ctx context.Context, tenantID string, projected, limit int64) bool {
	if a == nil || limit <= 0 {
		return false
	}
	pct := float64(projected) * 100 / float64(limit)
	if pct < a.cfg.ThresholdPct {
		return false
	}

	now := a.now().UTC()
	key := fmt.Sprintf("quota-alert:%s:%s", tenantID, now.Format("2006-01-02"))
	_, resetAt := DayWindow(now)
	ok, err := a.dedupe.Reserve(ctx, key, resetAt.Sub(now))
	if err != nil {
		a.logger.Warn("Alert dedupe failed", map[string]interface{}{"tenantId": tenantID, "error": err.Error()})
		return false
	}
	if !ok {
		return false
	}

	subject := fmt.Sprintf("Tenant %s at %.0f%% of daily token quota", tenantID, pct)
	body := fmt.Sprintf("Tenant %s has used %d of %d daily tokens (%.1f%%). The quota resets at %s.",
		tenantID, projected, limit, pct, resetAt.Format(time.RFC3339))

	sent := false
	if a.publisher != nil && a.cfg.TopicARN != "" {
		if _, err := a.publisher.PublishText(ctx, a.cfg.TopicARN, subject, body); err != nil {
			a.logger.Error("Failed to publish quota alert", map[string]interface{}{"tenantId": tenantID, "error": err.Error()})
		} else {
			sent = true
		}
	}
	if a.mailer != nil && a.cfg.EmailTo != "" {
		if _, err := a.mailer.SendText(ctx, a.cfg.EmailFrom, a.cfg.EmailTo, subject, body); err != nil {
			a.logger.Error("Failed to email quota alert", map[string]interface{}{"tenantId": tenantID, "error": err.Error()})
		} else {
			sent = true
		}
	}

	if sent {
		a.logger.Info("Quota alert sent", map[string]interface{}{"tenantId": tenantID, "pct": pct})
	}
	return sent
}
