package websearch

import (
	"context"
	"encoding/json"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/tools"
)

var toolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Search query"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 10}
	},
	"required": ["query"],
	"additionalProperties": false
}`)

// ToolResult is what the model sees for each hit. Ref is the citation marker
// to use for it, when the caller assigned one.
type ToolResult struct {
	Ref string `json:"ref,omitempty"`
	Result
}

// SearchFunc matches Service.Search.
type SearchFunc func(ctx context.Context, tenantID, query string, limit int) ([]Result, error)

// Tool exposes Search to the model for one tenant. register, if set, is told
// about every result set and returns the citation ref for each result.
func (s *Service) Tool(tenantID string, register func([]Result) []string) (llm.ToolSpec, llm.ToolHandler) {
	return NewTool(s.Search, tenantID, register)
}

func NewTool(search SearchFunc, tenantID string, register func([]Result) []string) (llm.ToolSpec, llm.ToolHandler) {
	spec := llm.ToolSpec{
		Name:        tools.WebSearchTool,
		Description: "Search the public web for current market, competitor and pricing information.",
		Parameters:  toolParameters,
	}

	handler := func(ctx context.Context, raw json.RawMessage) (string, error) {
		args, err := tools.ParseArguments(tools.WebSearchTool, raw)
		if err != nil {
			return "", err
		}
		results, err := search(ctx, tenantID, args.WebSearch.Query, args.WebSearch.Limit)
		if err != nil {
			return "", err
		}

		var refs []string
		if register != nil {
			refs = register(results)
		}
		out := make([]ToolResult, len(results))
		for i, r := range results {
			out[i] = ToolResult{Result: r}
			if i < len(refs) {
				out[i].Ref = refs[i]
			}
		}
		payload, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}

	return spec, handler
}
