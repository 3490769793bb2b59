package engine

import (
	"math"
	"sort"

	"lbo_workbench/pkg/core/deal"
)

// SelectExitEBITDA picks the EBITDA the exit is priced on: the final
// forecast year, falling back to the most recent prior year with
// strictly positive EBITDA. Zero when no such year exists.
func SelectExitEBITDA(cashFlows map[int]*YearCashFlow) float64 {
	years := make([]int, 0, len(cashFlows))
	for y := range cashFlows {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	if len(years) == 0 {
		return 0
	}
	if ebitda := cashFlows[years[0]].EBITDA; ebitda != 0 {
		return ebitda
	}
	for _, y := range years[1:] {
		if cashFlows[y].EBITDA > 0 {
			return cashFlows[y].EBITDA
		}
	}
	return 0
}

// CalculateReturns computes exit proceeds to equity and the headline
// return measures. Degenerate inputs (zero equity, zero MOIC, zero
// holding period) substitute zeros rather than erroring.
func CalculateReturns(d *deal.Deal, entryEquity, exitEBITDA, finalCash, finalDebt float64) *Returns {
	exitEV := d.Exit.Value(exitEBITDA)
	exitFees := exitEV * (d.ExitFeePct / 100)
	exitProceeds := exitEV + finalCash - finalDebt - exitFees

	holdingPeriod := d.HoldingPeriod()

	moic := 0.0
	if entryEquity > 0 {
		moic = exitProceeds / entryEquity
	}

	// Single-outflow, single-inflow IRR: the compounded rate linking
	// entry equity to exit proceeds.
	irr := 0.0
	if moic > 0 && holdingPeriod > 0 {
		irr = math.Pow(moic, 1/float64(holdingPeriod)) - 1
	}

	return &Returns{
		EntryEquity:         entryEquity,
		ExitEnterpriseValue: exitEV,
		ExitCash:            finalCash,
		ExitDebt:            finalDebt,
		ExitFees:            exitFees,
		ExitProceeds:        exitProceeds,
		MOIC:                moic,
		IRR:                 irr,
		HoldingPeriod:       holdingPeriod,
	}
}
