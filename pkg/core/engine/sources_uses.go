package engine

import (
	"math"

	"lbo_workbench/pkg/core/deal"
)

// BalanceTolerance is the allowed sources/uses gap, in deal units.
const BalanceTolerance = 0.01

// CalculateSourcesUses builds the sources & uses table for a deal.
//
// Uses: purchase price, transaction fees, financing fees, minimum
// cash. Sources: each tranche's drawn amount plus equity. Equity is
// the balancing plug unless the deal carries a user-supplied equity
// injection, in which case the table may not balance and the
// validation section says so.
func CalculateSourcesUses(d *deal.Deal) *SourcesUses {
	uses := make(map[string]float64)
	sources := make(map[string]float64)

	uses["purchase_price"] = d.PurchasePrice
	if d.TransactionFeeAmount > 0 {
		uses["transaction_fees"] = d.TransactionFeeAmount
	}
	totalFinancingFees := d.TotalFinancingFees()
	if totalFinancingFees > 0 {
		uses["financing_fees"] = totalFinancingFees
	}
	if d.MinimumCash > 0 {
		uses["minimum_cash"] = d.MinimumCash
	}

	var totalUses float64
	for _, v := range uses {
		totalUses += v
	}
	uses["total_uses"] = totalUses

	var totalDebt float64
	for i := range d.Tranches {
		t := &d.Tranches[i]
		sources[t.Label] = t.DrawnAmount
		totalDebt += t.DrawnAmount
	}
	if len(d.Tranches) > 1 {
		sources["total_debt"] = totalDebt
	}

	// Equity as plug, unless supplied.
	equity := totalUses - totalDebt
	if d.EquityInjection != nil {
		equity = *d.EquityInjection
	}
	sources["equity"] = equity

	totalSources := totalDebt + equity
	sources["total_sources"] = totalSources

	imbalance := math.Abs(totalSources - totalUses)

	details := SourcesUsesDetails{
		TotalFees: d.TransactionFeeAmount + totalFinancingFees,
	}
	if equity > 0 {
		details.DebtToEquityRatio = totalDebt / equity
	}
	if totalSources > 0 {
		details.EquityPercentage = equity / totalSources
		details.DebtPercentage = totalDebt / totalSources
	}

	return &SourcesUses{
		Sources: sources,
		Uses:    uses,
		Details: details,
		Validation: Validation{
			Balanced:  imbalance <= BalanceTolerance,
			Imbalance: imbalance,
		},
	}
}

// EntryEquity reads the equity line from a sources & uses table.
func (su *SourcesUses) EntryEquity() float64 {
	return su.Sources["equity"]
}
