// Package finance holds the deterministic unit-economics calculators exposed
// to the executor as the finance tool.
package finance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/models"
)

const (
	MetricGrossProfit      = "gross_profit"
	MetricMonthlyBurn      = "monthly_burn"
	MetricRunwayMonths     = "runway_months"
	MetricLTV              = "ltv"
	MetricLTVToCAC         = "ltv_to_cac"
	MetricCACPaybackMonths = "cac_payback_months"
	MetricBreakEvenMonth   = "break_even_month"

	ProjectionMonths = 12
)

// DefaultMetrics is computed when the plan does not name any.
var DefaultMetrics = []string{
	MetricGrossProfit,
	MetricMonthlyBurn,
	MetricRunwayMonths,
	MetricLTV,
	MetricLTVToCAC,
	MetricCACPaybackMonths,
	MetricBreakEvenMonth,
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

type MonthProjection struct {
	Month       int             `json:"month"`
	Revenue     decimal.Decimal `json:"revenue"`
	GrossProfit decimal.Decimal `json:"grossProfit"`
	NetIncome   decimal.Decimal `json:"netIncome"`
	Cash        decimal.Decimal `json:"cash"`
}

// Model is the computed result. Metrics that are undefined for the inputs
// (runway with no burn, LTV with no churn) are left out and listed in Notes.
type Model struct {
	Metrics    map[string]decimal.Decimal `json:"metrics"`
	Projection []MonthProjection          `json:"projection"`
	Notes      []string                   `json:"notes,omitempty"`
}

// Validate rejects negative amounts, percentages over 100 and inputs with no
// revenue figure at all.
func Validate(in *models.FinanceInputs) error {
	if in == nil {
		return errors.NewFinanceInputInvalidError("finance inputs are required")
	}

	var problems []string
	amounts := map[string]float64{
		"monthlyRevenue":    in.MonthlyRevenue,
		"monthlyFixedCosts": in.MonthlyFixedCosts,
		"cac":               in.CAC,
		"arpu":              in.ARPU,
		"cashOnHand":        in.CashOnHand,
	}
	percents := map[string]float64{
		"monthlyGrowthPct": in.MonthlyGrowthPct,
		"grossMarginPct":   in.GrossMarginPct,
		"monthlyChurnPct":  in.MonthlyChurnPct,
	}
	for name, v := range amounts {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative", name))
		}
	}
	for name, v := range percents {
		if v < 0 || v > 100 {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 100", name))
		}
	}
	if in.MonthlyRevenue == 0 && in.ARPU == 0 {
		problems = append(problems, "monthlyRevenue or arpu is required")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.NewFinanceInputInvalidError(strings.Join(problems, "; "))
	}
	return nil
}

// Compute validates in and returns the requested metrics plus a 12-month
// projection. An empty metricsNeeded means DefaultMetrics; unknown names are
// ignored.
func Compute(in *models.FinanceInputs, metricsNeeded []string) (*Model, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	want := wanted(metricsNeeded)
	revenue := decimal.NewFromFloat(in.MonthlyRevenue)
	margin := decimal.NewFromFloat(in.GrossMarginPct).Div(hundred)
	growth := decimal.NewFromFloat(in.MonthlyGrowthPct).Div(hundred)
	churn := decimal.NewFromFloat(in.MonthlyChurnPct).Div(hundred)
	fixed := decimal.NewFromFloat(in.MonthlyFixedCosts)
	cac := decimal.NewFromFloat(in.CAC)
	arpu := decimal.NewFromFloat(in.ARPU)
	cash := decimal.NewFromFloat(in.CashOnHand)

	m := &Model{Metrics: map[string]decimal.Decimal{}}
	set := func(name string, v decimal.Decimal) {
		if want[name] {
			m.Metrics[name] = Round(v)
		}
	}
	note := func(name, msg string) {
		if want[name] {
			m.Notes = append(m.Notes, fmt.Sprintf("%s: %s", name, msg))
		}
	}

	grossProfit := revenue.Mul(margin)
	set(MetricGrossProfit, grossProfit)

	burn := fixed.Sub(grossProfit)
	if burn.IsNegative() {
		burn = decimal.Zero
	}
	set(MetricMonthlyBurn, burn)

	if burn.IsPositive() {
		set(MetricRunwayMonths, cash.Div(burn))
	} else {
		note(MetricRunwayMonths, "not burning cash")
	}

	unitMargin := arpu.Mul(margin)
	var ltv decimal.Decimal
	if churn.IsPositive() {
		ltv = unitMargin.Div(churn)
		set(MetricLTV, ltv)
		if cac.IsPositive() {
			set(MetricLTVToCAC, ltv.Div(cac))
		} else {
			note(MetricLTVToCAC, "cac is zero")
		}
	} else {
		note(MetricLTV, "churn is zero")
		note(MetricLTVToCAC, "churn is zero")
	}

	if unitMargin.IsPositive() {
		set(MetricCACPaybackMonths, cac.Div(unitMargin))
	} else {
		note(MetricCACPaybackMonths, "arpu margin is zero")
	}

	m.Projection = project(revenue, growth, margin, fixed, cash)
	breakEven := 0
	for _, p := range m.Projection {
		if !p.NetIncome.IsNegative() {
			breakEven = p.Month
			break
		}
	}
	if breakEven > 0 {
		set(MetricBreakEvenMonth, decimal.NewFromInt(int64(breakEven)))
	} else {
		note(MetricBreakEvenMonth, fmt.Sprintf("not within %d months", ProjectionMonths))
	}

	return m, nil
}

func project(revenue, growth, margin, fixed, cash decimal.Decimal) []MonthProjection {
	out := make([]MonthProjection, 0, ProjectionMonths)
	factor := one.Add(growth)
	for month := 1; month <= ProjectionMonths; month++ {
		gp := revenue.Mul(margin)
		net := gp.Sub(fixed)
		cash = cash.Add(net)
		out = append(out, MonthProjection{
			Month:       month,
			Revenue:     Round(revenue),
			GrossProfit: Round(gp),
			NetIncome:   Round(net),
			Cash:        Round(cash),
		})
		revenue = revenue.Mul(factor)
	}
	return out
}

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func wanted(names []string) map[string]bool {
	if len(names) == 0 {
		names = DefaultMetrics
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return out
}

// Summary renders the metrics one per line in DefaultMetrics order, for
// inclusion in a prompt.
func (m *Model) Summary() string {
	var b strings.Builder
	for _, name := range DefaultMetrics {
		if v, ok := m.Metrics[name]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", name, v.StringFixed(2))
		}
	}
	if n := len(m.Projection); n > 0 {
		last := m.Projection[n-1]
		fmt.Fprintf(&b, "- month_%d_revenue: %s\n- month_%d_cash: %s\n",
			last.Month, last.Revenue.StringFixed(2), last.Month, last.Cash.StringFixed(2))
	}
	for _, n := range m.Notes {
		fmt.Fprintf(&b, "- note: %s\n", n)
	}
	return b.String()
}
