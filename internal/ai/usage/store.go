package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ai-orchestrator/internal/models"
)

// UsageStore persists usage rows in the assistant_usage table.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Insert(ctx context.Context, m models.UsageMetric) error {
	tools, err := json.Marshal(m.ToolInvocations)
	if err != nil {
		return fmt.Errorf("encode tool invocations: %w", err)
	}

	query := `INSERT INTO assistant_usage
		(tenant_id, user_id, assistant, request_id, model, tokens_in, tokens_out, cost_cents, latency_ms, tool_invocations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.db.ExecContext(ctx, query,
		m.TenantID, m.UserID, string(m.Assistant), m.RequestID, m.Model,
		m.TokensIn, m.TokensOut, m.CostCents, m.LatencyMs, tools, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *UsageStore) SumTokensByUser(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	return s.sum(ctx, "user_id", userID, from, to)
}

func (s *UsageStore) SumTokensByTenant(ctx context.Context, tenantID string, from, to time.Time) (int64, error) {
	return s.sum(ctx, "tenant_id", tenantID, from, to)
}

// column is one of two constants above, never caller input.
func (s *UsageStore) sum(ctx context.Context, column, id string, from, to time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(tokens_in + tokens_out), 0)
		FROM assistant_usage
		WHERE ` + column + ` = $1 AND created_at >= $2 AND created_at < $3`

	var total int64
	if err := s.db.QueryRowContext(ctx, query, id, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum usage by %s: %w", column, err)
	}
	return total, nil
}
