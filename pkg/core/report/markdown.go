// Package report renders an analysis result as a markdown summary and
// converts it to HTML for API consumers.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"lbo_workbench/pkg/core/engine"
)

// md renders GitHub-flavored markdown; the summary relies on pipe
// tables, which plain CommonMark does not cover.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// BuildMarkdown renders the analysis as a deterministic markdown
// document: headline returns, the sources & uses table, and the
// per-year leverage profile. Failed analyses render a short error
// note.
func BuildMarkdown(result *engine.AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# LBO Analysis - %s\n\n", result.CaseID)

	if !result.Success {
		fmt.Fprintf(&b, "**Analysis failed:** %s\n", result.Error)
		return b.String()
	}

	s := result.Summary
	fmt.Fprintf(&b, "## Returns\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| MOIC | %.2fx |\n", s.MOIC)
	fmt.Fprintf(&b, "| IRR | %.1f%% |\n", s.IRR*100)
	fmt.Fprintf(&b, "| Entry Equity | %.1f |\n", s.EntryEquity)
	fmt.Fprintf(&b, "| Exit Proceeds | %.1f |\n", s.ExitProceeds)
	fmt.Fprintf(&b, "| Holding Period | %d years |\n", s.HoldingPeriod)
	fmt.Fprintf(&b, "| Debt Paydown | %.1f |\n", s.TotalDebtPaydown)
	fmt.Fprintf(&b, "| Final Cash | %.1f |\n", s.FinalCash)
	fmt.Fprintf(&b, "| Final Net Leverage | %.2fx |\n\n", s.FinalLeverage)

	fmt.Fprintf(&b, "## Sources & Uses (%s)\n\n", s.Currency)
	writeAmountTable(&b, "Sources", result.SourcesUses.Sources, "total_sources")
	writeAmountTable(&b, "Uses", result.SourcesUses.Uses, "total_uses")
	if !result.SourcesUses.Validation.Balanced {
		fmt.Fprintf(&b, "> Sources and uses do not balance (gap %.2f).\n\n",
			result.SourcesUses.Validation.Imbalance)
	}

	fmt.Fprintf(&b, "## Leverage\n\n")
	fmt.Fprintf(&b, "| Year | Total Debt | Cash | Net Debt | Net Leverage |\n|---|---|---|---|---|\n")
	for _, year := range engine.SortedYears(result.AnnualCashFlows) {
		m := result.LeverageMetrics[year]
		if m == nil {
			continue
		}
		fmt.Fprintf(&b, "| %d | %.1f | %.1f | %.1f | %.2fx |\n",
			year, m.TotalDebt, m.Cash, m.NetDebt, m.NetLeverage)
	}

	return b.String()
}

// writeAmountTable prints one side of the funding table with line
// items sorted by label and the total pinned last.
func writeAmountTable(b *strings.Builder, title string, amounts map[string]float64, totalKey string) {
	fmt.Fprintf(b, "**%s**\n\n| Item | Amount |\n|---|---|\n", title)

	labels := make([]string, 0, len(amounts))
	for label := range amounts {
		if label != totalKey {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)

	for _, label := range labels {
		fmt.Fprintf(b, "| %s | %.1f |\n", label, amounts[label])
	}
	fmt.Fprintf(b, "| **Total** | %.1f |\n\n", amounts[totalKey])
}

// RenderHTML converts the markdown summary to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("markdown render failed: %w", err)
	}
	return buf.String(), nil
}
