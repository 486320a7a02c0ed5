// internal/workers/assistant/plan-request/handler_test.go
package planrequest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/ai/planner"
	"ai-orchestrator/internal/ai/usage"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/models"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{
		t:      t,
		fields: make(map[string]interface{}),
	}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

// ==========================
// Test Helpers
// ==========================

type fakePlanner struct {
	result planner.Result
	err    error
	got    models.PlannerInput
}

func (f *fakePlanner) PlanWithQuotaCheck(_ context.Context, input models.PlannerInput) (planner.Result, error) {
	f.got = input
	return f.result, f.err
}

func createTestInput() *Input {
	return &Input{
		Assistant: models.AssistantMarketAnalysis,
		Input:     "competitor pricing for B2B SaaS",
		TenantID:  "t1",
		UserID:    "u1",
	}
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	heuristic := planner.RegexHeuristics{}.DeriveHeuristics(createTestInput().PlannerInput()).Plan("x")

	tests := []struct {
		name     string
		planner  *fakePlanner
		input    *Input
		wantCode errors.ErrorCode
		validate func(t *testing.T, out *Output, p *fakePlanner)
	}{
		{
			name:    "plan is returned with the request",
			planner: &fakePlanner{result: planner.Result{Plan: heuristic, Fallback: true}},
			input:   createTestInput(),
			validate: func(t *testing.T, out *Output, p *fakePlanner) {
				assert.True(t, out.PlanFallback)
				assert.Equal(t, heuristic, out.Plan)
				assert.NotEmpty(t, out.Request.RequestID)
				assert.Equal(t, "t1", p.got.TenantID)
			},
		},
		{
			name:    "existing request id is kept",
			planner: &fakePlanner{result: planner.Result{Plan: heuristic}},
			input: func() *Input {
				in := createTestInput()
				in.RequestID = "req-42"
				return in
			}(),
			validate: func(t *testing.T, out *Output, _ *fakePlanner) {
				assert.Equal(t, "req-42", out.Request.RequestID)
			},
		},
		{
			name:     "quota error is returned",
			planner:  &fakePlanner{err: errors.NewQuotaExceededError(usage.ReasonUserDaily, time.Now())},
			input:    createTestInput(),
			wantCode: errors.ErrCodeQuotaExceeded,
		},
		{
			name:     "validation error is returned",
			planner:  &fakePlanner{err: errors.NewValidationFailedError("userId is required")},
			input:    createTestInput(),
			wantCode: errors.ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(LoadConfig(), tt.planner, NewTestLogger(t))
			out, err := h.Execute(context.Background(), tt.input)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode))
				bpmn := errors.ConvertToBPMNError(errors.Normalize(err))
				assert.Equal(t, string(tt.wantCode), bpmn.Code)
				return
			}
			require.NoError(t, err)
			tt.validate(t, out, tt.planner)
		})
	}
}

func TestOutput_JSONShape(t *testing.T) {
	out := Output{
		Plan:    models.PlannerOutput{Task: "t", Sections: []string{"Summary"}},
		Request: *createTestInput(),
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &vars))
	assert.Contains(t, vars, "plan")
	assert.Contains(t, vars, "request")
	assert.Contains(t, vars, "planFallback")
}
