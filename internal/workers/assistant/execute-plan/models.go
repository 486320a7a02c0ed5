// internal/workers/assistant/execute-plan/models.go
package executeplan

import "ai-orchestrator/internal/models"

type Input struct {
	Plan    models.PlannerOutput    `json:"plan"`
	Request models.AssistantRequest `json:"request"`
}

type Output struct {
	Response *models.AssistantResponse `json:"response"`
}
