// Package tools holds the typed argument union shared by the tool handlers.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/models"
)

const (
	WebSearchTool = "web_search"
	FinanceTool   = "finance_model"
)

type WebSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type FinanceArgs struct {
	Metrics []string              `json:"metrics,omitempty"`
	Inputs  *models.FinanceInputs `json:"inputs,omitempty"`
}

// Arguments is a decoded tool call. Exactly one payload is set, matching Tool.
type Arguments struct {
	Tool      string
	WebSearch *WebSearchArgs
	Finance   *FinanceArgs
}

// ParseArguments decodes raw model-supplied arguments for the named tool.
// Unknown tools and unknown fields are rejected.
func ParseArguments(name string, raw json.RawMessage) (*Arguments, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}

	switch name {
	case WebSearchTool:
		var args WebSearchArgs
		if err := decodeStrict(raw, &args); err != nil {
			return nil, errors.NewValidationFailedError(fmt.Sprintf("%s arguments: %v", name, err))
		}
		args.Query = strings.TrimSpace(args.Query)
		if args.Query == "" {
			return nil, errors.NewValidationFailedError("web_search arguments: query is required")
		}
		if args.Limit < 0 {
			return nil, errors.NewValidationFailedError("web_search arguments: limit must not be negative")
		}
		return &Arguments{Tool: name, WebSearch: &args}, nil

	case FinanceTool:
		var args FinanceArgs
		if err := decodeStrict(raw, &args); err != nil {
			return nil, errors.NewValidationFailedError(fmt.Sprintf("%s arguments: %v", name, err))
		}
		return &Arguments{Tool: name, Finance: &args}, nil

	default:
		return nil, errors.NewUnknownToolError(name)
	}
}

func decodeStrict(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
