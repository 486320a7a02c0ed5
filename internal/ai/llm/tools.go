package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-orchestrator/internal/common/metrics"
)

// ToolHandler executes one tool call. The returned string is sent back to
// the model as the tool result.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

type ToolsResult struct {
	ChatResult
	ToolCalls       []ToolCall
	ToolInvocations map[string]int
	// Truncated is set when the iteration cap was hit while the model was
	// still asking for tools; Text is then the last partial answer.
	Truncated bool
}

// ChatWithTools runs the model/tool loop until the model answers without
// requesting tools or MaxToolCalls iterations have run.
func (c *Client) ChatWithTools(ctx context.Context, conv Conversation, tools []ToolSpec, handlers map[string]ToolHandler, opts Options) (*ToolsResult, error) {
	if err := c.admit(ctx, opts); err != nil {
		return nil, err
	}

	maxIterations := opts.MaxToolCalls
	if maxIterations <= 0 {
		maxIterations = c.cfg.MaxToolCalls
	}

	out := &ToolsResult{ToolInvocations: map[string]int{}}
	for i := 0; i < maxIterations; i++ {
		res, resp, err := c.complete(ctx, conv, opts, tools, nil)
		if err != nil {
			return nil, err
		}
		out.Model = res.Model
		out.Text = res.Text
		out.add(res)

		if len(resp.ToolCalls) == 0 {
			return out, nil
		}

		out.ToolCalls = append(out.ToolCalls, resp.ToolCalls...)
		turn := []Message{{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls}}
		for _, call := range resp.ToolCalls {
			turn = append(turn, c.dispatch(ctx, call, handlers, out.ToolInvocations))
		}
		conv = conv.Append(turn...)
	}

	out.Truncated = true
	c.logger.Warn("Tool loop hit iteration cap", map[string]interface{}{
		"maxToolCalls": maxIterations,
		"toolCalls":    len(out.ToolCalls),
	})
	return out, nil
}

func (c *Client) dispatch(ctx context.Context, call ToolCall, handlers map[string]ToolHandler, invocations map[string]int) Message {
	name := call.Function.Name
	handler, ok := handlers[name]
	if !ok {
		c.logger.Warn("No handler registered for tool", map[string]interface{}{"tool": name})
		metrics.ToolInvocations.WithLabelValues(name, "skipped").Inc()
		// every tool_call_id needs a reply or the next request is rejected
		return ToolResultMessage(call.ID, fmt.Sprintf(`{"error":"tool %s is not available"}`, name))
	}

	invocations[name]++
	result, err := handler(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		c.logger.Warn("Tool handler failed", map[string]interface{}{
			"tool":  name,
			"error": err.Error(),
		})
		metrics.ToolInvocations.WithLabelValues(name, "error").Inc()
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return ToolResultMessage(call.ID, string(payload))
	}

	metrics.ToolInvocations.WithLabelValues(name, "success").Inc()
	return ToolResultMessage(call.ID, result)
}
