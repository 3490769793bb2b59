package projects

import (
	"time"

	"github.com/google/uuid"

	"lbo_workbench/pkg/core/binder"
)

// NewProjectData builds the empty document a fresh project starts
// from: meta plus a single base case whose defaults match what the
// binder assumes for omitted fields.
func NewProjectData(name, userID, companyName, currency, unit string) binder.Document {
	now := time.Now().UTC().Format(time.RFC3339)

	return binder.Document{
		"meta": binder.Document{
			"user_id":                userID,
			"project_id":             uuid.NewString(),
			"version":                "1.0",
			"name":                   name,
			"company_name":           companyName,
			"currency":               currency,
			"unit":                   unit,
			"frequency":              "annual",
			"financial_year_end":     "December",
			"last_historical_period": "",
			"created_date":           now,
			"last_modified":          now,
		},
		"cases": binder.Document{
			binder.DefaultCaseID: NewCaseData("Base Case"),
		},
	}
}

// NewCaseData builds an empty case skeleton.
func NewCaseData(description string) binder.Document {
	return binder.Document{
		"case_desc": description,
		"deal_parameters": binder.Document{
			"deal_date":            "",
			"exit_date":            "",
			"tax_rate":             0.25,
			"minimum_cash":         0.0,
			"entry_fee_percentage": 2.0,
			"exit_fee_percentage":  2.0,
			"entry_valuation": binder.Document{
				"method":   "multiple",
				"metric":   "EBITDA",
				"multiple": 8.0,
			},
			"exit_valuation": binder.Document{
				"method":   "multiple",
				"metric":   "EBITDA",
				"multiple": 8.0,
			},
			"capital_structure": binder.Document{
				"tranches":             []interface{}{},
				"reference_rate_curve": nil,
			},
			"equity_injection": nil,
		},
		"financials": binder.Document{
			"income_statement": binder.Document{
				"revenue": binder.Document{},
				"ebitda":  []interface{}{},
				"ebit":    []interface{}{},
				"d_and_a": []interface{}{},
			},
			"cash_flow_statement": binder.Document{
				"capex":           binder.Document{},
				"working_capital": binder.Document{},
			},
		},
	}
}
