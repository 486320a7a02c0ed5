package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/common/errors"
)

func TestSections_OrderAndCaseInsensitiveLookup(t *testing.T) {
	var s Sections
	s.Set("Summary", "short")
	s.Set("Competitors", "many")
	s.Set("summary", "longer")

	assert.Equal(t, []string{"Summary", "Competitors"}, s.Names())
	got, ok := s.Get("COMPETITORS")
	require.True(t, ok)
	assert.Equal(t, "many", got)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"Summary":"longer","Competitors":"many"}`, string(data))

	var back Sections
	require.NoError(t, json.Unmarshal([]byte(`{"Zeta":"z","Alpha":"a"}`), &back))
	assert.Equal(t, []string{"Zeta", "Alpha"}, back.Names())
}

func TestSections_PrependToFirst(t *testing.T) {
	s := Sections{{Name: "Summary", Content: "body"}}
	s.PrependToFirst("banner")

	got, _ := s.Get("Summary")
	assert.Equal(t, "banner\n\nbody", got)
}

func TestExtra_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"finance", `{"kind":"finance","finance":{"monthlyRevenue":1000,"cac":50}}`, ""},
		{"market", `{"kind":"market","market":{"industry":"saas"}}`, ""},
		{"unknown kind", `{"kind":"legal"}`, "unknown kind"},
		{"missing payload", `{"kind":"finance"}`, "requires only the finance payload"},
		{"mismatched payload", `{"kind":"market","finance":{}}`, "requires only the market payload"},
		{"unknown field", `{"kind":"finance","finance":{"revenue":1}}`, "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Extra
			err := json.Unmarshal([]byte(tt.payload), &e)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExtra_FinanceInputs(t *testing.T) {
	var e *Extra
	_, ok := e.FinanceInputs()
	assert.False(t, ok)

	e = &Extra{Kind: ExtraFinance, Finance: &FinanceInputs{CAC: 10}}
	fi, ok := e.FinanceInputs()
	require.True(t, ok)
	assert.Equal(t, 10.0, fi.CAC)
}

func TestPlannerInput_Validate(t *testing.T) {
	valid := PlannerInput{Assistant: AssistantGeneral, Input: "hi", TenantID: "t1", UserID: "u1"}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.TenantID = ""
	invalid.Assistant = "poetry"
	err := invalid.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	assert.Contains(t, err.(*errors.StandardError).Details, "tenantId is required")
}

func TestPlannerOutput_EnsureSources(t *testing.T) {
	p := PlannerOutput{RequiresWebSearch: true, Sections: []string{"Summary"}}
	p.EnsureSources()
	p.EnsureSources()
	assert.Equal(t, []string{"Summary", "Sources"}, p.Sections)

	q := PlannerOutput{Sections: []string{"Summary"}}
	q.EnsureSources()
	assert.Equal(t, []string{"Summary"}, q.Sections)
}
