package engine

import (
	"fmt"
	"sort"

	"lbo_workbench/pkg/core/binder"
	"lbo_workbench/pkg/core/deal"
)

// Analyze runs the full LBO pipeline on one case of a project
// document: bind, sources & uses, unlevered cash flows, debt
// waterfall, re-tax, returns. It is a total function: binder errors
// and any arithmetic panic come back as the failure variant, never as
// a Go error or a crash.
func Analyze(doc binder.Document, caseID string) (result *AnalysisResult) {
	if caseID == "" {
		caseID = binder.DefaultCaseID
	}

	defer func() {
		if r := recover(); r != nil {
			result = Failure(caseID, fmt.Sprintf("analysis failed: %v", r))
		}
	}()

	d, err := binder.New(doc, caseID).Bind()
	if err != nil {
		return Failure(caseID, err.Error())
	}
	return AnalyzeDeal(d, caseID)
}

// AnalyzeAllCases analyzes every case in the document. A failing case
// yields its failure result without aborting the rest.
func AnalyzeAllCases(doc binder.Document) map[string]*AnalysisResult {
	results := make(map[string]*AnalysisResult)
	for _, caseID := range binder.CaseIDs(doc) {
		results[caseID] = Analyze(doc, caseID)
	}
	return results
}

// AnalyzeDeal runs the calculation pipeline on an already-bound deal.
func AnalyzeDeal(d *deal.Deal, caseID string) (result *AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Failure(caseID, fmt.Sprintf("analysis failed: %v", r))
		}
	}()

	// Phase 1: Sources & Uses, equity as plug.
	sourcesUses := CalculateSourcesUses(d)
	entryEquity := sourcesUses.EntryEquity()

	// Phase 2: first-pass cash flows, interest still zero.
	cashFlows := BuildCashFlows(d)

	// Phase 3: debt waterfall with revolver reconciliation.
	debt := BuildDebtSchedules(d, cashFlows)

	// Phase 4: re-tax the headline table with the final interest.
	RetaxCashFlows(d, cashFlows, debt.TotalInterest, debt.CashInterest)

	leverage := LeverageByYear(cashFlows, debt)

	// Phase 5: exit and returns.
	years := d.ForecastYears()
	finalYear := years[len(years)-1]
	finalCash := debt.CashBalance[finalYear]
	finalDebt := debt.TotalDebt(finalYear)
	exitEBITDA := SelectExitEBITDA(cashFlows)

	returns := CalculateReturns(d, entryEquity, exitEBITDA, finalCash, finalDebt)

	finalLeverage := 0.0
	if m := leverage[finalYear]; m != nil {
		finalLeverage = m.NetLeverage
	}

	return &AnalysisResult{
		Success:         true,
		CaseID:          caseID,
		SourcesUses:     sourcesUses,
		AnnualCashFlows: cashFlows,
		DebtSchedules:   debt.Schedules,
		CashBalance:     debt.CashBalance,
		LeverageMetrics: leverage,
		Converged:       debt.Converged,
		Returns:         returns,
		Summary: &Summary{
			CaseID:           caseID,
			IRR:              returns.IRR,
			MOIC:             returns.MOIC,
			EntryEquity:      entryEquity,
			ExitProceeds:     returns.ExitProceeds,
			TotalDebtPaydown: debt.TotalPaydown(),
			FinalCash:        finalCash,
			FinalLeverage:    finalLeverage,
			HoldingPeriod:    returns.HoldingPeriod,
			Currency:         d.Currency,
		},
	}
}

// SortedYears returns the ascending year keys of a cash flow table.
// Shared by reporting code that needs a stable iteration order.
func SortedYears(cashFlows map[int]*YearCashFlow) []int {
	years := make([]int, 0, len(cashFlows))
	for y := range cashFlows {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
