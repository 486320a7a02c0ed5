package models

import "time"

// UsageMetric is one append-only usage row.
type UsageMetric struct {
	TenantID        string         `json:"tenantId"`
	UserID          string         `json:"userId"`
	Assistant       AssistantType  `json:"assistant"`
	RequestID       string         `json:"requestId"`
	Model           string         `json:"model"`
	TokensIn        int            `json:"tokensIn"`
	TokensOut       int            `json:"tokensOut"`
	CostCents       float64        `json:"costCents"`
	LatencyMs       int64          `json:"latencyMs"`
	ToolInvocations map[string]int `json:"toolInvocations,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func (u UsageMetric) TotalTokens() int {
	return u.TokensIn + u.TokensOut
}
