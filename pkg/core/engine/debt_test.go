package engine

import (
	"math"
	"testing"

	"lbo_workbench/pkg/core/deal"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// checkCashMassBalance verifies, for every forecast year, that
// ending cash = prior cash + CFADS - non-revolver principal totals
// + revolver net draws. Callers re-tax the flows first so CFADS
// reflects the final interest series.
func checkCashMassBalance(t *testing.T, d *deal.Deal, flows map[int]*YearCashFlow, debt *DebtResult) {
	t.Helper()
	prevCash := d.MinimumCash
	for _, year := range d.ForecastYears() {
		var principal, netDraws float64
		for _, sched := range debt.Schedules {
			pp := sched.PrincipalPayments[year]
			if sched.IsRevolver {
				// Revolver total is -draw + repayment; its net draw
				// contribution is the negation.
				netDraws += -pp.Total
			} else {
				principal += pp.Total
			}
		}
		want := prevCash + flows[year].CFADS - principal + netDraws
		got := debt.CashBalance[year]
		if !almostEqual(got, want, 0.01) {
			t.Errorf("Year %d: cash mass balance broken: got %.4f, want %.4f", year, got, want)
		}
		prevCash = got
	}
}

func TestWaterfallSweepOrderAndPayoff(t *testing.T) {
	// Two bonds, same seniority: the sweep must hit them in label
	// order, and a tranche paid to zero accrues no further interest.
	a := tranche("Alpha", "bond", 50, 1, 0)
	b := tranche("Beta", "bond", 50, 1, 0)
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2026,
		TaxRate:  0,
		Tranches: []deal.Tranche{b, a}, // definition order must not matter
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 60, 2026: 60}),
		},
	}

	flows := BuildCashFlows(d)
	debt := BuildDebtSchedules(d, flows)

	alpha := debt.Schedules["Alpha"]
	beta := debt.Schedules["Beta"]

	// Year 1: 60 of cash sweeps Alpha fully (50), then Beta (10).
	if alpha.Balances[2025] != 0 {
		t.Errorf("Expected Alpha swept to zero, got %.2f", alpha.Balances[2025])
	}
	if beta.Balances[2025] != 40 {
		t.Errorf("Expected Beta at 40, got %.2f", beta.Balances[2025])
	}
	if alpha.PrincipalPayments[2025].Sweep != 50 || beta.PrincipalPayments[2025].Sweep != 10 {
		t.Error("Sweep amounts not allocated in (seniority, label) order")
	}

	// Year 2: Alpha is gone; zero interest, zero payments.
	if alpha.InterestExpense[2026] != 0 {
		t.Errorf("Paid-off tranche should accrue no interest, got %.2f", alpha.InterestExpense[2026])
	}
	if beta.Balances[2026] != 0 {
		t.Errorf("Expected Beta swept to zero in year 2, got %.2f", beta.Balances[2026])
	}

	RetaxCashFlows(d, flows, debt.TotalInterest, debt.CashInterest)
	checkCashMassBalance(t, d, flows, debt)
}

func TestWaterfallMandatoryClippedToBalance(t *testing.T) {
	// 60% annual schedule on a 100 tranche: year 2's mandatory (60)
	// exceeds the 40 remaining and must clip.
	tl := tranche("TL", "bond", 100, 1, 0)
	tl.Schedule = []float64{0.6, 0.6}
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2026,
		TaxRate:  0,
		Tranches: []deal.Tranche{tl},
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 60, 2026: 60}),
			CapEx:  seriesOf("CapEx", map[int]float64{2025: 60, 2026: 60}),
		},
	}

	flows := BuildCashFlows(d)
	debt := BuildDebtSchedules(d, flows)

	sched := debt.Schedules["TL"]
	if sched.PrincipalPayments[2025].Mandatory != 60 {
		t.Errorf("Expected mandatory 60, got %.2f", sched.PrincipalPayments[2025].Mandatory)
	}
	if sched.PrincipalPayments[2026].Mandatory != 40 {
		t.Errorf("Expected mandatory clipped to 40, got %.2f", sched.PrincipalPayments[2026].Mandatory)
	}
	if sched.Balances[2026] != 0 {
		t.Errorf("Expected full paydown, got %.2f", sched.Balances[2026])
	}
	// No revolver and no cash: the mandatory payments drive cash
	// negative rather than halting the run.
	if debt.CashBalance[2025] >= 0 {
		t.Errorf("Expected negative cash on unfunded mandatory, got %.2f", debt.CashBalance[2025])
	}
	RetaxCashFlows(d, flows, debt.TotalInterest, debt.CashInterest)
	checkCashMassBalance(t, d, flows, debt)
}

func TestWaterfallRevolverRepaymentSweep(t *testing.T) {
	// A revolver drawn at the deal date is the first use of excess
	// cash.
	rcf := deal.Tranche{
		Label:           "RCF",
		Type:            "revolver",
		OriginalSize:    30,
		PercentageDrawn: 0.5,
		Floating:        true,
		InterestMargin:  0.02,
		Seniority:       99,
	}
	rcf.Derive()

	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2025,
		TaxRate:  0,
		Tranches: []deal.Tranche{rcf},
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 20}),
		},
	}

	flows := BuildCashFlows(d)
	debt := BuildDebtSchedules(d, flows)

	sched := debt.Schedules["RCF"]
	// Interest on the 15 opening at 2% default reference + 2% margin.
	if !almostEqual(sched.InterestExpense[2025], 0.6, 1e-9) {
		t.Errorf("Expected revolver interest 0.6, got %.4f", sched.InterestExpense[2025])
	}
	if sched.Balances[2025] != 0 {
		t.Errorf("Expected revolver repaid, got %.2f", sched.Balances[2025])
	}
	if sched.PrincipalPayments[2025].Total != 15 {
		t.Errorf("Expected net repayment total 15, got %.2f", sched.PrincipalPayments[2025].Total)
	}
	// 20 - 0.6 interest - 15 repayment.
	if !almostEqual(debt.CashBalance[2025], 4.4, 1e-9) {
		t.Errorf("Expected ending cash 4.4, got %.4f", debt.CashBalance[2025])
	}
	if !debt.Converged[2025] {
		t.Error("Expected convergence")
	}
	RetaxCashFlows(d, flows, debt.TotalInterest, debt.CashInterest)
	checkCashMassBalance(t, d, flows, debt)
}

func TestWaterfallRevolverDrawOnShortfall(t *testing.T) {
	// Mandatory amortization exceeds available cash: the revolver
	// plugs the gap and the sweep is skipped that year.
	tl := tranche("TL", "term_loan", 120, 1, 0)
	tl.Floating = true
	tl.InterestMargin = 0.04
	tl.Schedule = []float64{0.1, 0.1}
	rcf := deal.Tranche{
		Label:          "RCF",
		Type:           "revolver",
		OriginalSize:   30,
		Floating:       true,
		InterestMargin: 0.02,
		Seniority:      99,
	}
	rcf.Derive()

	d := &deal.Deal{
		DealYear:    2024,
		ExitYear:    2026,
		TaxRate:     0.30,
		MinimumCash: 10,
		Curve:       &deal.RateCurve{Rates: map[int]float64{2025: 0.03, 2026: 0.03}},
		Tranches:    []deal.Tranche{tl, rcf},
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 18, 2026: 22}),
			CapEx:  seriesOf("CapEx", map[int]float64{2025: 4, 2026: 5}),
		},
	}

	flows := BuildCashFlows(d)
	debt := BuildDebtSchedules(d, flows)

	// Year 2025: interest 120 * 0.07 = 8.4; taxes (18 - 8.4) * 0.30 =
	// 2.88; CFADS = 18 - 8.4 - 2.88 - 4 = 2.72; available 2.72 against
	// mandatory 12 -> draw 9.28.
	rcfSched := debt.Schedules["RCF"]
	if !almostEqual(rcfSched.RevolverDraws[2025], 9.28, 1e-9) {
		t.Errorf("Expected draw 9.28, got %.4f", rcfSched.RevolverDraws[2025])
	}
	if !almostEqual(rcfSched.Balances[2025], 9.28, 1e-9) {
		t.Errorf("Expected revolver balance 9.28, got %.4f", rcfSched.Balances[2025])
	}
	if !almostEqual(rcfSched.PrincipalPayments[2025].Total, -9.28, 1e-9) {
		t.Errorf("Expected net draw total -9.28, got %.4f", rcfSched.PrincipalPayments[2025].Total)
	}
	if rcfSched.PrincipalPayments[2025].Sweep != 0 {
		t.Error("Draw and sweep are mutually exclusive within a year")
	}
	// The draw holds ending cash at the minimum.
	if !almostEqual(debt.CashBalance[2025], 10, 1e-9) {
		t.Errorf("Expected ending cash at minimum 10, got %.4f", debt.CashBalance[2025])
	}
	if !debt.Converged[2025] || !debt.Converged[2026] {
		t.Error("Expected convergence in both years")
	}

	tlSched := debt.Schedules["TL"]
	if tlSched.Balances[2025] != 108 || tlSched.Balances[2026] != 96 {
		t.Errorf("Expected TL 108 then 96, got %.2f then %.2f",
			tlSched.Balances[2025], tlSched.Balances[2026])
	}

	RetaxCashFlows(d, flows, debt.TotalInterest, debt.CashInterest)
	checkCashMassBalance(t, d, flows, debt)
}

func TestWaterfallPIKCompounding(t *testing.T) {
	// 5% cash + 5% PIK on 50: PIK capitalizes before any sweep can
	// touch the balance, and the next year accrues on the grown base.
	mezz := tranche("Mezz", "mezzanine", 50, 1, 0.05)
	mezz.PIKRate = 0.05

	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2027,
		TaxRate:  0.25,
		Tranches: []deal.Tranche{mezz},
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 10, 2026: 10, 2027: 10}),
			CapEx:  seriesOf("CapEx", map[int]float64{2025: 20, 2026: 20, 2027: 20}),
		},
	}

	flows := BuildCashFlows(d)
	debt := BuildDebtSchedules(d, flows)
	sched := debt.Schedules["Mezz"]

	if !almostEqual(sched.PIKInterest[2025], 2.5, 1e-9) {
		t.Errorf("Expected PIK 2.5, got %.4f", sched.PIKInterest[2025])
	}
	if !almostEqual(sched.Balances[2025], 52.5, 1e-9) {
		t.Errorf("Expected balance 52.5, got %.4f", sched.Balances[2025])
	}
	if !almostEqual(sched.PIKInterest[2026], 2.625, 1e-9) {
		t.Errorf("Expected PIK 2.625 on the grown base, got %.4f", sched.PIKInterest[2026])
	}
	if !almostEqual(sched.InterestExpense[2026], 2.625, 1e-9) {
		t.Errorf("Expected cash interest 2.625, got %.4f", sched.InterestExpense[2026])
	}
	if !almostEqual(sched.Balances[2026], 55.125, 1e-9) {
		t.Errorf("Expected balance 55.125, got %.4f", sched.Balances[2026])
	}

	RetaxCashFlows(d, flows, debt.TotalInterest, debt.CashInterest)
	checkCashMassBalance(t, d, flows, debt)
}

func TestWaterfallScheduleOverhangIgnored(t *testing.T) {
	// More schedule entries than forecast years: the tail is unused.
	tl := tranche("TL", "bond", 100, 1, 0)
	tl.Schedule = []float64{0.1, 0.1, 0.1, 0.1, 0.1}
	d := &deal.Deal{
		DealYear: 2024,
		ExitYear: 2026,
		TaxRate:  0,
		Tranches: []deal.Tranche{tl},
		Financials: deal.Financials{
			EBITDA: seriesOf("EBITDA", map[int]float64{2025: 10, 2026: 10}),
		},
	}

	flows := BuildCashFlows(d)
	debt := BuildDebtSchedules(d, flows)

	sched := debt.Schedules["TL"]
	totalMandatory := sched.PrincipalPayments[2025].Mandatory + sched.PrincipalPayments[2026].Mandatory
	if totalMandatory != 20 {
		t.Errorf("Expected 20 of mandatory across the horizon, got %.2f", totalMandatory)
	}
	if sched.TotalPaydown <= 0 {
		t.Errorf("Expected positive paydown, got %.2f", sched.TotalPaydown)
	}
}

func TestLeverageByYearZeroEBITDA(t *testing.T) {
	flows := map[int]*YearCashFlow{
		2025: {EBITDA: 20},
		2026: {EBITDA: 0},
	}
	debt := &DebtResult{
		Schedules: map[string]*TrancheSchedule{
			"TL": {Balances: map[int]float64{2025: 80, 2026: 70}},
		},
		CashBalance: map[int]float64{2025: 5, 2026: 8},
	}

	metrics := LeverageByYear(flows, debt)

	if got := metrics[2025].GrossLeverage; !almostEqual(got, 4, 1e-9) {
		t.Errorf("Expected gross leverage 4.0x, got %.4f", got)
	}
	if got := metrics[2025].NetLeverage; !almostEqual(got, 75.0/20.0, 1e-9) {
		t.Errorf("Expected net leverage 3.75x, got %.4f", got)
	}
	if metrics[2026].GrossLeverage != 0 || metrics[2026].NetLeverage != 0 {
		t.Error("Zero EBITDA must zero the leverage ratios")
	}
	if metrics[2026].TotalDebt != 70 || metrics[2026].NetDebt != 62 {
		t.Error("Absolute debt figures still reported with zero EBITDA")
	}
}
