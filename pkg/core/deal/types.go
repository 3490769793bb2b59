package deal

import "strings"

// Valuation methods accepted for entry and exit pricing.
const (
	MethodMultiple = "multiple"
	MethodHardcode = "hardcode"
)

// DefaultReferenceRate is the flat floating reference rate used when no
// curve is supplied.
const DefaultReferenceRate = 0.02

var revolverTypes = map[string]bool{
	"revolver":                  true,
	"revolving credit facility": true,
	"rcf":                       true,
}

var floatingTypes = map[string]bool{
	"loan":            true,
	"syndicated loan": true,
	"revolver":        true,
	"rcf":             true,
	"frn":             true,
	"term_loan":       true,
}

// IsRevolverType reports whether a tranche type string denotes a
// revolving facility.
func IsRevolverType(trancheType string) bool {
	return revolverTypes[strings.ToLower(trancheType)]
}

// IsFloatingType reports whether a tranche type defaults to floating
// rate pricing.
func IsFloatingType(trancheType string) bool {
	return floatingTypes[strings.ToLower(trancheType)]
}

// Tranche is one layer of the capital structure. Values are fixed at
// construction; DrawnAmount and FinancingFeeAmount are derived.
type Tranche struct {
	Label            string  `json:"label"`
	Type             string  `json:"type"`
	OriginalSize     float64 `json:"original_size"`
	PercentageDrawn  float64 `json:"percentage_drawn_at_deal_date"`
	CashInterestRate float64 `json:"cash_interest_rate"`
	InterestMargin   float64 `json:"interest_margin"`
	PIKRate          float64 `json:"pik_interest_rate"`
	Floating         bool    `json:"is_floating_rate"`
	IsRevolver       bool    `json:"is_revolver"`

	// Schedule holds per-year amortization fractions (0.10 = 10% of
	// original size). Empty schedule with zero UniformRate is a bullet.
	Schedule    []float64 `json:"amortization_schedule,omitempty"`
	UniformRate float64   `json:"amortization_rate,omitempty"`

	FinancingFeeRate float64 `json:"financing_fees"`
	Seniority        int     `json:"repayment_seniority"`
	Maturity         string  `json:"maturity,omitempty"`

	DrawnAmount        float64 `json:"drawn_amount"`
	FinancingFeeAmount float64 `json:"financing_fee_amount"`
}

// Derive fills the values computed from the declared fields.
func (t *Tranche) Derive() {
	t.IsRevolver = IsRevolverType(t.Type)
	t.DrawnAmount = t.OriginalSize * t.PercentageDrawn
	t.FinancingFeeAmount = t.OriginalSize * t.FinancingFeeRate
}

// AmortizationFraction returns the fraction of original size due as
// mandatory amortization in forecast year yearIdx (0-indexed from the
// first forecast year). Schedule entries beyond the horizon are
// ignored; years beyond the schedule read as zero.
func (t *Tranche) AmortizationFraction(yearIdx int) float64 {
	if len(t.Schedule) > 0 {
		if yearIdx >= 0 && yearIdx < len(t.Schedule) {
			return t.Schedule[yearIdx]
		}
		return 0
	}
	return t.UniformRate
}

// CashRate returns the applicable cash interest rate for a year: the
// fixed rate, or reference + margin for floating tranches.
func (t *Tranche) CashRate(curve *RateCurve, year int) float64 {
	if t.Floating {
		return curve.Rate(year) + t.InterestMargin
	}
	return t.CashInterestRate
}

// RateCurve maps years to a floating reference rate. A nil curve (or a
// year without an entry) reads as the flat default.
type RateCurve struct {
	Rates map[int]float64 `json:"rates"`
}

// Rate returns the reference rate for a year.
func (c *RateCurve) Rate(year int) float64 {
	if c == nil || c.Rates == nil {
		return DefaultReferenceRate
	}
	if r, ok := c.Rates[year]; ok {
		return r
	}
	return DefaultReferenceRate
}

// Valuation describes how entry or exit enterprise value is priced.
type Valuation struct {
	Method    string  `json:"method"`
	Multiple  float64 `json:"multiple"`
	Hardcoded float64 `json:"hardcoded_value"`
}

// Value resolves the valuation against an EBITDA figure. The hardcode
// method wins when set; otherwise multiple-based pricing applies when
// both factors are positive.
func (v Valuation) Value(ebitda float64) float64 {
	if v.Method == MethodHardcode && v.Hardcoded > 0 {
		return v.Hardcoded
	}
	if v.Multiple > 0 && ebitda > 0 {
		return ebitda * v.Multiple
	}
	return 0
}

// Financials carries the projected operating series. EBITDA is
// required; the rest are optional and read as zero when absent.
type Financials struct {
	Revenue        *Series `json:"revenue,omitempty"`
	EBITDA         *Series `json:"ebitda"`
	EBIT           *Series `json:"ebit,omitempty"`
	DandA          *Series `json:"d_and_a,omitempty"`
	CapEx          *Series `json:"capex,omitempty"`
	WorkingCapital *Series `json:"working_capital,omitempty"`
}

// Deal is the validated, immutable input to an analysis run.
type Deal struct {
	Currency    string  `json:"currency"`
	Unit        string  `json:"unit"`
	DealYear    int     `json:"deal_year"`
	ExitYear    int     `json:"exit_year"`
	TaxRate     float64 `json:"tax_rate"`
	MinimumCash float64 `json:"minimum_cash"`

	// Fee percentages are percent numbers: 2.0 means 2%.
	EntryFeePct float64 `json:"entry_fee_percentage"`
	ExitFeePct  float64 `json:"exit_fee_percentage"`

	Entry Valuation `json:"entry_valuation"`
	Exit  Valuation `json:"exit_valuation"`

	PurchasePrice        float64 `json:"purchase_price"`
	TransactionFeeAmount float64 `json:"transaction_fee_amount"`

	// EquityInjection overrides the equity plug when supplied by the
	// user; sources may then fail to balance uses.
	EquityInjection *float64 `json:"equity_injection,omitempty"`

	Tranches []Tranche  `json:"tranches"`
	Curve    *RateCurve `json:"reference_rate_curve,omitempty"`

	Financials Financials `json:"financials"`
}

// ForecastYears returns the dense horizon [deal_year+1 .. exit_year].
func (d *Deal) ForecastYears() []int {
	if d.ExitYear <= d.DealYear {
		return nil
	}
	years := make([]int, 0, d.ExitYear-d.DealYear)
	for y := d.DealYear + 1; y <= d.ExitYear; y++ {
		years = append(years, y)
	}
	return years
}

// HoldingPeriod is the number of years between entry and exit.
func (d *Deal) HoldingPeriod() int {
	return d.ExitYear - d.DealYear
}

// Revolver returns the first revolving tranche in definition order, or
// nil when the structure has none.
func (d *Deal) Revolver() *Tranche {
	for i := range d.Tranches {
		if d.Tranches[i].IsRevolver {
			return &d.Tranches[i]
		}
	}
	return nil
}

// TotalFinancingFees sums the financing fee amounts across tranches.
func (d *Deal) TotalFinancingFees() float64 {
	var total float64
	for i := range d.Tranches {
		total += d.Tranches[i].FinancingFeeAmount
	}
	return total
}

// TotalDrawnDebt sums the amounts drawn at the deal date.
func (d *Deal) TotalDrawnDebt() float64 {
	var total float64
	for i := range d.Tranches {
		total += d.Tranches[i].DrawnAmount
	}
	return total
}
