package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ExtraKind string

const (
	ExtraFinance ExtraKind = "finance"
	ExtraMarket  ExtraKind = "market"
)

// Extra is the optional typed payload of a request. Exactly the field named
// by Kind is set.
type Extra struct {
	Kind    ExtraKind      `json:"kind"`
	Finance *FinanceInputs `json:"finance,omitempty"`
	Market  *MarketContext `json:"market,omitempty"`
}

// FinanceInputs are the monthly unit economics the finance tool works from.
// Percentages are 0-100.
type FinanceInputs struct {
	MonthlyRevenue    float64 `json:"monthlyRevenue"`
	MonthlyGrowthPct  float64 `json:"monthlyGrowthPct"`
	GrossMarginPct    float64 `json:"grossMarginPct"`
	MonthlyFixedCosts float64 `json:"monthlyFixedCosts"`
	CAC               float64 `json:"cac"`
	ARPU              float64 `json:"arpu"`
	MonthlyChurnPct   float64 `json:"monthlyChurnPct"`
	CashOnHand        float64 `json:"cashOnHand"`
}

type MarketContext struct {
	Industry    string   `json:"industry,omitempty"`
	Region      string   `json:"region,omitempty"`
	Competitors []string `json:"competitors,omitempty"`
}

func (e *Extra) UnmarshalJSON(data []byte) error {
	type plain Extra
	var p plain

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("extra: %w", err)
	}

	switch p.Kind {
	case ExtraFinance:
		if p.Finance == nil || p.Market != nil {
			return fmt.Errorf("extra: kind finance requires only the finance payload")
		}
	case ExtraMarket:
		if p.Market == nil || p.Finance != nil {
			return fmt.Errorf("extra: kind market requires only the market payload")
		}
	default:
		return fmt.Errorf("extra: unknown kind %q", p.Kind)
	}

	*e = Extra(p)
	return nil
}

// FinanceInputs returns the finance payload, if this is a finance extra.
func (e *Extra) FinanceInputs() (*FinanceInputs, bool) {
	if e == nil || e.Kind != ExtraFinance || e.Finance == nil {
		return nil, false
	}
	return e.Finance, true
}
