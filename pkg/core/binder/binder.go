package binder

import (
	"fmt"
	"strconv"
	"strings"

	"lbo_workbench/pkg/core/deal"
)

// DefaultCaseID selects the scenario analyzed when the caller does not
// name one.
const DefaultCaseID = "base_case"

// Defaults applied when the document omits a field. These mirror the
// empty-case skeleton the projects API creates.
const (
	defaultTaxRate          = 0.25
	defaultEntryFeePct      = 2.0
	defaultExitFeePct       = 2.0
	defaultFinancingFeeRate = 0.01
	defaultDealDate         = "2024-12-31"
	defaultExitDate         = "2029-12-31"
	defaultCurrency         = "USD"
	defaultUnit             = "millions"
)

// Binder converts a loosely-typed project document into a validated
// Deal. All synonym tolerance and format normalization lives here;
// downstream code only ever sees the typed model.
type Binder struct {
	doc      Document
	caseID   string
	currency string
	unit     string
}

// New creates a binder for one case of a project document.
func New(doc Document, caseID string) *Binder {
	if caseID == "" {
		caseID = DefaultCaseID
	}
	meta := asMap(doc["meta"])
	currency := toString(meta["currency"])
	if currency == "" {
		currency = defaultCurrency
	}
	unit := toString(meta["unit"])
	if unit == "" {
		unit = defaultUnit
	}
	return &Binder{doc: doc, caseID: caseID, currency: currency, unit: unit}
}

// CaseIDs lists the case keys present in a document.
func CaseIDs(doc Document) []string {
	cases := asMap(doc["cases"])
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	return ids
}

// Bind extracts and validates the case, returning the immutable Deal.
// Every malformed-input condition surfaces here, never as a numeric
// error later in the pipeline.
func (b *Binder) Bind() (*deal.Deal, error) {
	cases := asMap(b.doc["cases"])
	caseData, ok := cases[b.caseID].(Document)
	if !ok || len(caseData) == 0 {
		return nil, fmt.Errorf("case %q not found in project", b.caseID)
	}

	params := asMap(caseData["deal_parameters"])

	dealDate := toString(params["deal_date"])
	if dealDate == "" {
		dealDate = defaultDealDate
	}
	exitDate := toString(params["exit_date"])
	if exitDate == "" {
		exitDate = defaultExitDate
	}
	dealYear, ok := yearOf(dealDate)
	if !ok {
		return nil, fmt.Errorf("deal_date %q has no parseable year", dealDate)
	}
	exitYear, ok := yearOf(exitDate)
	if !ok {
		return nil, fmt.Errorf("exit_date %q has no parseable year", exitDate)
	}
	if exitYear <= dealYear {
		return nil, fmt.Errorf("exit year %d must be after deal year %d", exitYear, dealYear)
	}

	financials, err := b.bindFinancials(asMap(caseData["financials"]))
	if err != nil {
		return nil, err
	}
	if financials.EBITDA.Len() == 0 || financials.EBITDA.AllZero() {
		return nil, fmt.Errorf("no EBITDA data found - cannot run LBO analysis")
	}

	capitalStructure := asMap(params["capital_structure"])
	tranches, err := b.bindTranches(asList(capitalStructure["tranches"]))
	if err != nil {
		return nil, err
	}
	curve := bindRateCurve(capitalStructure["reference_rate_curve"])

	d := &deal.Deal{
		Currency:    b.currency,
		Unit:        b.unit,
		DealYear:    dealYear,
		ExitYear:    exitYear,
		TaxRate:     floatOr(params["tax_rate"], defaultTaxRate),
		MinimumCash: floatOr(params["minimum_cash"], 0),
		EntryFeePct: floatOr(params["entry_fee_percentage"], defaultEntryFeePct),
		ExitFeePct:  floatOr(params["exit_fee_percentage"], defaultExitFeePct),
		Entry:       bindValuation(asMap(params["entry_valuation"])),
		Exit:        bindValuation(asMap(params["exit_valuation"])),
		Tranches:    tranches,
		Curve:       curve,
		Financials:  financials,
	}

	if v, present := toFloat(params["equity_injection"]); present {
		d.EquityInjection = &v
	}

	d.PurchasePrice = d.Entry.Value(financials.EBITDA.Value(dealYear))
	if d.PurchasePrice <= 0 {
		return nil, fmt.Errorf("no purchase price calculated - check entry multiple and EBITDA")
	}
	d.TransactionFeeAmount = d.PurchasePrice * (d.EntryFeePct / 100)

	return d, nil
}

func bindValuation(m Document) deal.Valuation {
	method := toString(m["method"])
	if method == "" {
		method = deal.MethodMultiple
	}
	return deal.Valuation{
		Method:    strings.ToLower(method),
		Multiple:  floatOr(m["multiple"], 0),
		Hardcoded: floatOr(m["hardcoded_value"], 0),
	}
}

func bindRateCurve(v interface{}) *deal.RateCurve {
	m := asMap(v)
	if inner, ok := m["rates"].(Document); ok {
		m = inner
	}
	if len(m) == 0 {
		return nil
	}
	curve := &deal.RateCurve{Rates: make(map[int]float64, len(m))}
	for key, val := range m {
		year, ok := yearOf(key)
		if !ok {
			continue
		}
		if rate, ok := toFloat(val); ok {
			curve.Rates[year] = rate
		}
	}
	if len(curve.Rates) == 0 {
		return nil
	}
	return curve
}

func (b *Binder) bindTranches(raw []interface{}) ([]deal.Tranche, error) {
	tranches := make([]deal.Tranche, 0, len(raw))
	for i, entry := range raw {
		m, ok := entry.(Document)
		if !ok {
			return nil, fmt.Errorf("tranche %d is not an object", i)
		}
		t, err := b.bindTranche(m, i)
		if err != nil {
			return nil, err
		}
		tranches = append(tranches, t)
	}
	return tranches, nil
}

func (b *Binder) bindTranche(m Document, idx int) (deal.Tranche, error) {
	trancheType := toString(m["tranche_type"])
	if trancheType == "" {
		trancheType = toString(m["type"])
	}
	if trancheType == "" {
		trancheType = "Bond"
	}

	label := toString(m["label"])
	if label == "" {
		label = toString(m["name"])
	}
	if label == "" {
		label = fmt.Sprintf("Debt Tranche %d", idx+1)
	}

	size := firstFloat(m, "original_size", "amount", "size")
	if size <= 0 {
		return deal.Tranche{}, fmt.Errorf("tranche %q has non-positive size", label)
	}

	// Percentage drawn defaults to zero for revolvers, fully drawn
	// otherwise.
	drawn, present := toFloat(m["percentage_drawn_at_deal_date"])
	if !present {
		if deal.IsRevolverType(trancheType) {
			drawn = 0
		} else {
			drawn = 1
		}
	}

	interestRate := firstFloat(m, "interest_rate", "interest_margin", "cash_interest_rate")
	margin := floatOr(m["interest_margin"], 0)

	floating := deal.IsFloatingType(trancheType)
	if explicit, ok := toBool(m["is_floating_rate"]); ok {
		floating = explicit
	}

	schedule, uniformRate, err := bindAmortization(m, label)
	if err != nil {
		return deal.Tranche{}, err
	}

	t := deal.Tranche{
		Label:            label,
		Type:             trancheType,
		OriginalSize:     size,
		PercentageDrawn:  drawn,
		CashInterestRate: interestRate,
		InterestMargin:   margin,
		PIKRate:          floatOr(m["pik_interest_rate"], 0),
		Floating:         floating,
		Schedule:         schedule,
		UniformRate:      uniformRate,
		FinancingFeeRate: floatOr(m["financing_fees"], defaultFinancingFeeRate),
		Seniority:        int(firstFloatOr(m, 1, "repayment_seniority", "seniority")),
		Maturity:         toString(m["maturity"]),
	}
	t.Derive()
	return t, nil
}

// bindAmortization resolves the schedule from either an explicit
// per-year specification (string "10/10/10" or list of percent
// numbers) or a uniform annual rate. Percent entries are stored as
// decimals.
func bindAmortization(m Document, label string) ([]float64, float64, error) {
	raw := m["amortization_schedule"]
	if raw == nil || (toString(raw) == "" && asList(raw) == nil) {
		raw = m["amortization"]
	}

	switch v := raw.(type) {
	case string:
		schedule, err := ParseScheduleString(v)
		if err != nil {
			return nil, 0, fmt.Errorf("tranche %q: %w", label, err)
		}
		if len(schedule) > 0 {
			return schedule, 0, nil
		}
	case []interface{}:
		schedule := make([]float64, 0, len(v))
		for _, part := range v {
			pct, ok := toFloat(part)
			if !ok {
				return nil, 0, fmt.Errorf("tranche %q: amortization entry %v is not a number", label, part)
			}
			schedule = append(schedule, pct/100)
		}
		if len(schedule) > 0 {
			return schedule, 0, nil
		}
	}

	if rate, present := toFloat(m["amortization_rate"]); present && rate > 0 {
		return nil, rate, nil
	}
	return nil, 0, nil
}

// ParseScheduleString parses "p1/p2/.../pn" where each entry is a
// percent number ("10" means 10%). Empty and "0" mean bullet.
func ParseScheduleString(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	schedule := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "%"))
		pct, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("amortization schedule %q does not parse: bad entry %q", s, part)
		}
		schedule = append(schedule, pct/100)
	}
	return schedule, nil
}

func (b *Binder) bindFinancials(m Document) (deal.Financials, error) {
	income := asMap(m["income_statement"])
	cashFlow := asMap(m["cash_flow_statement"])

	f := deal.Financials{
		Revenue:        b.bindSeries(income["revenue"], "Revenue"),
		EBITDA:         b.bindSeries(income["ebitda"], "EBITDA"),
		EBIT:           b.bindSeries(income["ebit"], "EBIT"),
		CapEx:          b.bindSeries(cashFlow["capex"], "CapEx"),
		WorkingCapital: b.bindSeries(cashFlow["working_capital"], "Working Capital"),
	}
	if v, ok := income["d_and_a"]; ok {
		f.DandA = b.bindSeries(v, "D&A")
	} else {
		f.DandA = b.bindSeries(income["d&a"], "D&A")
	}
	if f.EBITDA == nil {
		f.EBITDA = deal.NewSeries("EBITDA", b.currency, b.unit)
	}
	return f, nil
}

// bindSeries normalizes any of the accepted series encodings into one
// mapping:
//
//  1. [{year, value}, ...]
//  2. {values: [{year, value}, ...]}
//  3. {year: {value}} or {year: number}
//
// plus the legacy list-of-sources form [{primary_use, data: {...}}]
// where the primary entry (or the first) wins.
func (b *Binder) bindSeries(raw interface{}, label string) *deal.Series {
	if raw == nil {
		return nil
	}
	s := deal.NewSeries(label, b.currency, b.unit)

	addYearMap := func(m Document) {
		for key, val := range m {
			year, ok := yearOf(key)
			if !ok {
				continue
			}
			if nested, isMap := val.(Document); isMap {
				if v, ok := toFloat(nested["value"]); ok {
					s.Set(year, v)
				}
			} else if v, ok := toFloat(val); ok {
				s.Set(year, v)
			}
		}
	}

	addEntryList := func(list []interface{}) bool {
		added := false
		for _, entry := range list {
			m, ok := entry.(Document)
			if !ok {
				continue
			}
			year, yok := yearOf(m["year"])
			value, vok := toFloat(m["value"])
			if yok && vok {
				s.Set(year, value)
				added = true
			}
		}
		return added
	}

	switch v := raw.(type) {
	case []interface{}:
		if addEntryList(v) {
			break
		}
		// Source-list form: prefer the primary entry.
		var primary Document
		for _, entry := range v {
			m, ok := entry.(Document)
			if !ok {
				continue
			}
			if use, _ := toFloat(m["primary_use"]); use == 1 {
				primary = m
				break
			}
			if primary == nil {
				primary = m
			}
		}
		if primary != nil {
			addYearMap(asMap(primary["data"]))
		}
	case Document:
		if values := asList(v["values"]); values != nil {
			addEntryList(values)
			break
		}
		addYearMap(v)
	}

	if s.Len() == 0 {
		return nil
	}
	return s
}

// firstFloat returns the first non-zero numeric value among the named
// keys, mirroring the synonym chains of the upstream schema.
func firstFloat(m Document, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := toFloat(m[key]); ok && v != 0 {
			return v
		}
	}
	return 0
}

func firstFloatOr(m Document, fallback float64, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := toFloat(m[key]); ok {
			return v
		}
	}
	return fallback
}

func floatOr(v interface{}, fallback float64) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}
