package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

func SystemMessage(text string) Message    { return Message{Role: RoleSystem, Content: text} }
func DeveloperMessage(text string) Message { return Message{Role: RoleDeveloper, Content: text} }
func UserMessage(text string) Message      { return Message{Role: RoleUser, Content: text} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec advertises a callable function to the model. Parameters is a JSON Schema.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ResponseFormat requests schema-constrained JSON output.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
	Strict bool
}

type CompletionRequest struct {
	Model          string
	Messages       []Message
	MaxTokens      int
	Temperature    *float64
	Tools          []ToolSpec
	ResponseFormat *ResponseFormat
	PromptCacheKey string
}

type CompletionResponse struct {
	Model          string
	Text           string
	ToolCalls      []ToolCall
	FinishReason   string
	TokensIn       int
	CachedTokensIn int
	TokensOut      int
}

// Provider is the upstream model API.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}
