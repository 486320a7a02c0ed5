// internal/workers/assistant/plan-request/models.go
package planrequest

import "ai-orchestrator/internal/models"

// Input is the assistant request as started by the process.
type Input = models.AssistantRequest

type Output struct {
	Plan         models.PlannerOutput    `json:"plan"`
	PlanFallback bool                    `json:"planFallback"`
	Request      models.AssistantRequest `json:"request"`
}
