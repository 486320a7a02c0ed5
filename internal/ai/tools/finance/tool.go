package finance

import (
	"context"
	"encoding/json"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/tools"
	"ai-orchestrator/internal/models"
)

var toolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"metrics": {"type": "array", "items": {"type": "string"}},
		"inputs": {
			"type": "object",
			"properties": {
				"monthlyRevenue": {"type": "number"},
				"monthlyGrowthPct": {"type": "number"},
				"grossMarginPct": {"type": "number"},
				"monthlyFixedCosts": {"type": "number"},
				"cac": {"type": "number"},
				"arpu": {"type": "number"},
				"monthlyChurnPct": {"type": "number"},
				"cashOnHand": {"type": "number"}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`)

// Tool exposes Compute to the model. Calls without inputs use defaults,
// normally the figures the request came with.
func Tool(defaults *models.FinanceInputs) (llm.ToolSpec, llm.ToolHandler) {
	spec := llm.ToolSpec{
		Name:        tools.FinanceTool,
		Description: "Compute unit economics (burn, runway, LTV, CAC payback) and a 12-month projection.",
		Parameters:  toolParameters,
	}

	handler := func(_ context.Context, raw json.RawMessage) (string, error) {
		args, err := tools.ParseArguments(tools.FinanceTool, raw)
		if err != nil {
			return "", err
		}
		inputs := args.Finance.Inputs
		if inputs == nil {
			inputs = defaults
		}
		model, err := Compute(inputs, args.Finance.Metrics)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(model)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}

	return spec, handler
}
