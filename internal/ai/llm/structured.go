package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/validation"
)

// StructuredResult holds decoded model output and the usage of every attempt.
type StructuredResult[T any] struct {
	Data  T
	Usage ChatResult
}

const correctiveInstruction = "Your previous reply did not match the required JSON schema (%s). " +
	"Reply again with only a JSON object that matches the schema exactly, with no extra fields and no prose."

// ChatStructured asks for output constrained to schema and decodes it into T.
// A schema violation on the first attempt gets one corrective retry.
func ChatStructured[T any](ctx context.Context, c *Client, schema *validation.Schema, name string, conv Conversation, opts Options) (*StructuredResult[T], error) {
	if err := c.admit(ctx, opts); err != nil {
		return nil, err
	}

	format := &ResponseFormat{Name: name, Schema: schema.Raw(), Strict: true}
	out := &StructuredResult[T]{}

	var lastProblem string
	for attempt := 0; attempt < 2; attempt++ {
		res, _, err := c.complete(ctx, conv, opts, nil, format)
		if err != nil {
			return nil, err
		}
		if out.Usage.Model == "" {
			out.Usage.Model = res.Model
		}
		out.Usage.add(res)
		out.Usage.Text = res.Text

		data, problem := decodeStructured[T](schema, res.Text)
		if problem == "" {
			out.Data = data
			return out, nil
		}

		lastProblem = problem
		c.logger.Warn("Structured output rejected", map[string]interface{}{
			"schema":  name,
			"attempt": attempt + 1,
			"problem": problem,
		})
		conv = conv.Append(
			AssistantMessage(res.Text),
			UserMessage(fmt.Sprintf(correctiveInstruction, problem)),
		)
	}

	return nil, errors.NewStructuredOutputInvalidError(lastProblem, nil)
}

// decodeStructured returns the decoded value, or a description of why the
// text was rejected.
func decodeStructured[T any](schema *validation.Schema, text string) (T, string) {
	var zero T
	doc := []byte(stripCodeFences(text))

	result, err := schema.Validate(doc)
	if err != nil {
		return zero, fmt.Sprintf("invalid JSON: %v", err)
	}
	if !result.Valid {
		return zero, result.Summary()
	}

	var data T
	if err := json.Unmarshal(doc, &data); err != nil {
		return zero, fmt.Sprintf("decode: %v", err)
	}
	return data, ""
}

// stripCodeFences removes a surrounding ``` or ```json fence.
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
