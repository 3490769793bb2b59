package engine

import (
	"math"
	"sort"

	"lbo_workbench/pkg/core/deal"
)

// Fixed-point loop bounds for the within-year revolver reconciliation.
// The final iteration's values are kept even when the loop exits
// without converging; the per-year Converged flag records which.
const (
	maxWaterfallIterations = 10
	convergenceThreshold   = 0.01
)

// DebtResult bundles the outputs of the waterfall run.
type DebtResult struct {
	Schedules     map[string]*TrancheSchedule
	TotalInterest map[int]float64
	CashInterest  map[int]float64
	CashBalance   map[int]float64
	Converged     map[int]bool
}

// TotalDebt sums every tranche balance recorded for a year.
func (r *DebtResult) TotalDebt(year int) float64 {
	var total float64
	for _, sched := range r.Schedules {
		total += sched.Balances[year]
	}
	return total
}

// TotalPaydown sums the lifetime paydown across tranches.
func (r *DebtResult) TotalPaydown() float64 {
	var total float64
	for _, sched := range r.Schedules {
		total += sched.TotalPaydown
	}
	return total
}

// BuildDebtSchedules runs the debt waterfall year by year over the
// forecast horizon.
//
// Within a year: accrue interest on opening balances, capitalize PIK,
// recompute taxes and CFADS pro forma, pay mandatory amortization by
// (seniority, label) with the revolver as plug for shortfalls, sweep
// excess cash (revolver first, then tranches in the same order), and
// record ending cash. The year iterates to a fixed point on the
// revolver balance: draw and sweep interact with available cash, so
// the loop re-runs until the revolver closing balance is stable.
//
// The revolver is deliberately not capped at its original size; an
// overdraw shows up in the schedule rather than failing the run.
func BuildDebtSchedules(d *deal.Deal, cashFlows map[int]*YearCashFlow) *DebtResult {
	years := d.ForecastYears()

	result := &DebtResult{
		Schedules:     make(map[string]*TrancheSchedule, len(d.Tranches)),
		TotalInterest: make(map[int]float64, len(years)),
		CashInterest:  make(map[int]float64, len(years)),
		CashBalance:   make(map[int]float64, len(years)),
		Converged:     make(map[int]bool, len(years)),
	}

	for i := range d.Tranches {
		t := &d.Tranches[i]
		result.Schedules[t.Label] = &TrancheSchedule{
			Type:              t.Type,
			StartingBalance:   t.DrawnAmount,
			OriginalSize:      t.OriginalSize,
			IsRevolver:        t.IsRevolver,
			Balances:          map[int]float64{d.DealYear: t.DrawnAmount},
			PrincipalPayments: make(map[int]*PrincipalPayment, len(years)),
			InterestExpense:   make(map[int]float64, len(years)),
			PIKInterest:       make(map[int]float64, len(years)),
			RevolverDraws:     make(map[int]float64),
		}
	}

	// One revolver per deal: first by definition order wins.
	var revolver *deal.Tranche
	var revSched *TrancheSchedule
	for i := range d.Tranches {
		if d.Tranches[i].IsRevolver {
			revolver = &d.Tranches[i]
			revSched = result.Schedules[revolver.Label]
			break
		}
	}

	// Non-revolver tranches in waterfall order.
	ordered := make([]*deal.Tranche, 0, len(d.Tranches))
	for i := range d.Tranches {
		if !d.Tranches[i].IsRevolver {
			ordered = append(ordered, &d.Tranches[i])
		}
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].Seniority != ordered[b].Seniority {
			return ordered[a].Seniority < ordered[b].Seniority
		}
		return ordered[a].Label < ordered[b].Label
	})

	prevCash := d.MinimumCash

	for yearIdx, year := range years {
		cf := cashFlows[year]
		prevYear := year - 1

		prevIterRevolver := 0.0
		if revolver != nil {
			prevIterRevolver = revSched.Balances[prevYear]
		}

		var endingCash float64
		var totalCashInterest, totalPIKInterest float64
		converged := false

		for iter := 0; iter < maxWaterfallIterations; iter++ {
			totalCashInterest, totalPIKInterest = 0, 0

			// Step 1: interest accrual on opening balances. A tranche
			// paid to zero accrues nothing from then on.
			for i := range d.Tranches {
				t := &d.Tranches[i]
				sched := result.Schedules[t.Label]
				opening := sched.Balances[prevYear]

				var cashInterest, pikInterest float64
				if opening > 0 {
					cashInterest = opening * t.CashRate(d.Curve, year)
					if !t.IsRevolver {
						pikInterest = opening * t.PIKRate
					}
				}
				sched.InterestExpense[year] = cashInterest
				sched.PIKInterest[year] = pikInterest
				totalCashInterest += cashInterest
				totalPIKInterest += pikInterest
			}

			// Step 2: PIK capitalization; reset the year's slots for
			// this iteration.
			for i := range d.Tranches {
				t := &d.Tranches[i]
				sched := result.Schedules[t.Label]
				opening := sched.Balances[prevYear]
				if t.IsRevolver {
					sched.Balances[year] = opening
					sched.RevolverDraws[year] = 0
				} else {
					sched.Balances[year] = opening + sched.PIKInterest[year]
				}
				sched.PrincipalPayments[year] = &PrincipalPayment{}
			}

			// Step 3: pro-forma CFADS. The iteration-local tax rate is
			// the effective rate implied by the first pass when EBIT is
			// positive, the deal rate otherwise.
			iterTaxRate := d.TaxRate
			if cf.EBIT > 0 {
				iterTaxRate = math.Abs(cf.CashTaxes) / cf.EBIT
			}
			pbt := cf.EBIT - (totalCashInterest + totalPIKInterest)
			iterTaxes := math.Max(0, pbt*iterTaxRate)
			cfads := cf.EBITDA - totalCashInterest - iterTaxes + cf.CapEx + cf.ChangeWC
			availableForDebt := prevCash + cfads - d.MinimumCash

			// Step 4: mandatory amortization due, clipped to the
			// post-PIK balance.
			mandatoryDue := make(map[string]float64, len(ordered))
			for _, t := range ordered {
				frac := t.AmortizationFraction(yearIdx)
				if frac <= 0 {
					continue
				}
				due := t.OriginalSize * frac
				if balance := result.Schedules[t.Label].Balances[year]; due > balance {
					due = balance
				}
				mandatoryDue[t.Label] = due
			}

			// Step 5: pay mandatory by seniority. Shortfalls draw the
			// revolver; the tranche is reduced by the full amount
			// either way.
			remaining := availableForDebt
			drawNeeded := 0.0
			for _, t := range ordered {
				due := mandatoryDue[t.Label]
				if due <= 0 {
					continue
				}
				sched := result.Schedules[t.Label]
				sched.PrincipalPayments[year].Mandatory = due
				sched.Balances[year] -= due
				if remaining >= due {
					remaining -= due
				} else {
					drawNeeded += due - math.Max(0, remaining)
					remaining = 0
				}
			}

			revolverDraw := 0.0
			if revolver != nil && drawNeeded > 0 {
				revolverDraw = drawNeeded
				revSched.Balances[year] += revolverDraw
				revSched.RevolverDraws[year] = revolverDraw
			}

			// Step 6: cash sweep. The revolver is repaid first, but
			// never in a year it was drawn; then tranches by seniority.
			revolverRepay := 0.0
			if remaining > 0 {
				if revolver != nil && revolverDraw == 0 && revSched.Balances[year] > 0 {
					revolverRepay = math.Min(remaining, revSched.Balances[year])
					revSched.Balances[year] -= revolverRepay
					revSched.PrincipalPayments[year].Sweep = revolverRepay
					remaining -= revolverRepay
				}
				for _, t := range ordered {
					if remaining <= 0 {
						break
					}
					sched := result.Schedules[t.Label]
					balance := sched.Balances[year]
					if balance <= 0 {
						continue
					}
					sweep := math.Min(remaining, balance)
					sched.PrincipalPayments[year].Sweep += sweep
					sched.Balances[year] -= sweep
					remaining -= sweep
				}
			}

			// Step 7: principal totals. The revolver's total is its net
			// movement: negative on a net draw.
			var nonRevolverTotals float64
			for _, t := range ordered {
				sched := result.Schedules[t.Label]
				pp := sched.PrincipalPayments[year]
				pp.Total = pp.Mandatory + pp.Sweep
				nonRevolverTotals += pp.Total
				if sched.Balances[year] < 0 {
					sched.Balances[year] = 0
				}
			}
			if revolver != nil {
				pp := revSched.PrincipalPayments[year]
				pp.Total = -revolverDraw + revolverRepay
			}

			// Step 8: ending cash.
			endingCash = prevCash + cfads - nonRevolverTotals + revolverDraw - revolverRepay
			result.CashBalance[year] = endingCash

			// Step 9: convergence on the revolver closing balance.
			if revolver == nil {
				converged = true
				break
			}
			closing := revSched.Balances[year]
			if math.Abs(closing-prevIterRevolver) < convergenceThreshold {
				converged = true
				break
			}
			prevIterRevolver = closing
		}

		result.TotalInterest[year] = totalCashInterest + totalPIKInterest
		result.CashInterest[year] = totalCashInterest
		result.Converged[year] = converged
		prevCash = endingCash
	}

	// Lifetime paydown per tranche.
	if len(years) > 0 {
		finalYear := years[len(years)-1]
		for _, sched := range result.Schedules {
			sched.TotalPaydown = sched.StartingBalance - sched.Balances[finalYear]
		}
	}

	return result
}

// LeverageByYear derives the per-year credit metrics from the debt
// schedules, the cash balances, and the EBITDA line.
func LeverageByYear(cashFlows map[int]*YearCashFlow, debt *DebtResult) map[int]*LeverageMetrics {
	metrics := make(map[int]*LeverageMetrics, len(cashFlows))
	for year, cf := range cashFlows {
		totalDebt := debt.TotalDebt(year)
		cash := debt.CashBalance[year]
		netDebt := totalDebt - cash

		m := &LeverageMetrics{
			TotalDebt: totalDebt,
			Cash:      cash,
			NetDebt:   netDebt,
		}
		if cf.EBITDA > 0 {
			m.GrossLeverage = totalDebt / cf.EBITDA
			m.NetLeverage = netDebt / cf.EBITDA
		}
		metrics[year] = m
	}
	return metrics
}
