package engine

import (
	"math"
	"testing"

	"lbo_workbench/pkg/core/deal"
)

func seriesOf(label string, values map[int]float64) *deal.Series {
	s := deal.NewSeries(label, "USD", "millions")
	for year, v := range values {
		s.Set(year, v)
	}
	return s
}

func TestBuildCashFlowsBasics(t *testing.T) {
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2026,
		TaxRate:  0.25,
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2024: 25, 2025: 28, 2026: 31}),
			DandA:  seriesOf("D&A", map[int]float64{2025: 4, 2026: 4}),
			CapEx:  seriesOf("CapEx", map[int]float64{2025: 5, 2026: -6}),
			WorkingCapital: seriesOf("Working Capital", map[int]float64{
				2024: 10, 2025: 12, 2026: 11,
			}),
		},
	}

	flows := BuildCashFlows(d)
	if len(flows) != 2 {
		t.Fatalf("Expected 2 forecast years, got %d", len(flows))
	}

	cf := flows[2025]
	// EBIT derived from EBITDA - D&A when no EBIT series is given.
	if cf.EBIT != 24 {
		t.Errorf("Expected EBIT 24, got %.2f", cf.EBIT)
	}
	// Taxes on EBIT at the deal rate, stored as outflow.
	if cf.CashTaxes != -6 {
		t.Errorf("Expected taxes -6, got %.2f", cf.CashTaxes)
	}
	// Positive capex input flips to an outflow; negative stays.
	if cf.CapEx != -5 {
		t.Errorf("Expected capex -5, got %.2f", cf.CapEx)
	}
	if flows[2026].CapEx != -6 {
		t.Errorf("Expected capex -6, got %.2f", flows[2026].CapEx)
	}
	// WC rises 10 -> 12: a 2-unit outflow.
	if cf.ChangeWC != -2 {
		t.Errorf("Expected change in WC -2, got %.2f", cf.ChangeWC)
	}
	// WC falls 12 -> 11 the next year: a 1-unit inflow.
	if flows[2026].ChangeWC != 1 {
		t.Errorf("Expected change in WC +1, got %.2f", flows[2026].ChangeWC)
	}

	wantUFCF := 28.0 - 6 - 5 - 2
	if math.Abs(cf.UnleveredFCF-wantUFCF) > 1e-9 {
		t.Errorf("Expected unlevered FCF %.2f, got %.2f", wantUFCF, cf.UnleveredFCF)
	}
	if cf.CashInterest != 0 || cf.FCF != cf.UnleveredFCF || cf.CFADS != cf.UnleveredFCF {
		t.Error("First pass should leave interest zero and FCF = unlevered FCF")
	}
}

func TestBuildCashFlowsExplicitEBIT(t *testing.T) {
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2025,
		TaxRate:  0.25,
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 28}),
			EBIT:   seriesOf("EBIT", map[int]float64{2025: 20}),
			DandA:  seriesOf("D&A", map[int]float64{2025: 4}),
		},
	}
	flows := BuildCashFlows(d)
	if flows[2025].EBIT != 20 {
		t.Errorf("Explicit EBIT series should win, got %.2f", flows[2025].EBIT)
	}
}

func TestBuildCashFlowsTaxFloor(t *testing.T) {
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2025,
		TaxRate:  0.25,
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 5}),
			DandA:  seriesOf("D&A", map[int]float64{2025: 10}),
		},
	}
	flows := BuildCashFlows(d)
	// EBIT = -5: no loss carryforward, taxes floor at zero.
	if flows[2025].CashTaxes != 0 {
		t.Errorf("Expected zero taxes on negative EBIT, got %.2f", flows[2025].CashTaxes)
	}
}

func TestRetaxCashFlows(t *testing.T) {
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2025,
		TaxRate:  0.25,
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 28}),
		},
	}
	flows := BuildCashFlows(d)

	totalInterest := map[int]float64{2025: 8}
	cashInterest := map[int]float64{2025: 6}
	RetaxCashFlows(d, flows, totalInterest, cashInterest)

	cf := flows[2025]
	// PBT = 28 - 8 = 20 -> taxes 5.
	if cf.CashTaxes != -5 {
		t.Errorf("Expected re-taxed -5, got %.2f", cf.CashTaxes)
	}
	if cf.CashInterest != -6 {
		t.Errorf("Expected cash interest -6, got %.2f", cf.CashInterest)
	}
	wantFCF := 28.0 - 5 - 6
	if cf.FCF != wantFCF || cf.CFADS != wantFCF {
		t.Errorf("Expected FCF %.2f, got %.2f / %.2f", wantFCF, cf.FCF, cf.CFADS)
	}
}

func TestRetaxIdempotence(t *testing.T) {
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2027,
		TaxRate:  0.30,
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 20, 2026: 22, 2027: 26}),
			CapEx:  seriesOf("CapEx", map[int]float64{2025: 4, 2026: 5, 2027: 5}),
		},
	}
	flows := BuildCashFlows(d)
	totalInterest := map[int]float64{2025: 8.4, 2026: 7.6, 2027: 6.7}
	cashInterest := map[int]float64{2025: 8.4, 2026: 7.6, 2027: 6.7}

	RetaxCashFlows(d, flows, totalInterest, cashInterest)
	first := make(map[int]YearCashFlow, len(flows))
	for y, cf := range flows {
		first[y] = *cf
	}

	RetaxCashFlows(d, flows, totalInterest, cashInterest)
	for y, cf := range flows {
		if *cf != first[y] {
			t.Errorf("Year %d: re-tax is not idempotent: %+v vs %+v", y, first[y], *cf)
		}
	}
}
