package planner

import (
	"encoding/json"

	"ai-orchestrator/internal/common/validation"
	"ai-orchestrator/internal/models"
)

const systemPrompt = `You are the planning stage of a business assistant. You do not answer the user.
You decide what the answering stage needs: whether to search the tenant's documents, whether to search the web,
which sections the answer must have, and which financial metrics to compute.`

const developerPrompt = `Return a JSON object only.
- task: one sentence describing what the answer must accomplish.
- requires_retrieval: true when the user refers to their own documents, files or data.
- requires_web_search: true when the answer depends on current market, competitor, pricing or industry facts.
- query_terms: at most 10 short search terms.
- sections: the headings the answer must contain, in order. Include "Sources" whenever retrieval or web search is required.
- metrics_needed: finance metric ids from gross_profit, monthly_burn, runway_months, ltv, ltv_to_cac, cac_payback_months, break_even_month. Empty when no numbers are needed.
- escalate_model: true only for long, multi-step or high-stakes requests the small model is likely to get wrong.
The hints are a deterministic first guess. Keep them unless the input clearly says otherwise.`

// planSchema is strict: every property required, nothing extra.
var planSchema = validation.MustCompile(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["task", "requires_retrieval", "requires_web_search", "query_terms", "sections", "metrics_needed", "escalate_model"],
	"properties": {
		"task": {"type": "string", "minLength": 1},
		"requires_retrieval": {"type": "boolean"},
		"requires_web_search": {"type": "boolean"},
		"query_terms": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
		"sections": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1, "maxItems": 12},
		"metrics_needed": {"type": "array", "items": {"type": "string"}},
		"escalate_model": {"type": "boolean"}
	}
}`)

type userPayload struct {
	Assistant models.AssistantType `json:"assistant"`
	Input     string               `json:"input"`
	ExtraKind models.ExtraKind     `json:"extra_kind,omitempty"`
	Hints     Heuristics           `json:"hints"`
}

func buildUserMessage(input models.PlannerInput, h Heuristics) (string, error) {
	payload := userPayload{Assistant: input.Assistant, Input: input.Input, Hints: h}
	if input.Extra != nil {
		payload.ExtraKind = input.Extra.Kind
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
