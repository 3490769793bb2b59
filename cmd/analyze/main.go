// Command analyze runs the LBO engine against a deal document on disk
// and prints the results. Documents may be JSON, Hjson, or YAML.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"lbo_workbench/pkg/core/binder"
	"lbo_workbench/pkg/core/engine"
	"lbo_workbench/pkg/core/report"
)

func main() {
	godotenv.Load()

	var (
		file     = flag.String("file", "", "deal document (json, hjson, or yaml)")
		caseID   = flag.String("case", binder.DefaultCaseID, "case to analyze")
		allCases = flag.Bool("all", false, "analyze every case in the document")
		asJSON   = flag.Bool("json", false, "print the full result as JSON")
		asReport = flag.Bool("report", false, "print the markdown report")
	)
	flag.Parse()

	if *file == "" {
		fmt.Println("usage: analyze -file deal.json [-case base_case | -all] [-json] [-report]")
		os.Exit(1)
	}

	doc, err := loadDocument(*file)
	if err != nil {
		fmt.Printf("[FATAL] %v\n", err)
		os.Exit(1)
	}

	if *allCases {
		results := engine.AnalyzeAllCases(doc)
		ids := make([]string, 0, len(results))
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			printResult(results[id], *asJSON, *asReport)
		}
		return
	}

	printResult(engine.Analyze(doc, *caseID), *asJSON, *asReport)
}

func loadDocument(path string) (binder.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var loose interface{}
		if err := yaml.Unmarshal(raw, &loose); err != nil {
			return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
		doc, ok := binder.Normalize(loose).(binder.Document)
		if !ok {
			return nil, fmt.Errorf("%s does not contain a document mapping", path)
		}
		return doc, nil
	default:
		return binder.DecodeDocument(raw)
	}
}

func printResult(result *engine.AnalysisResult, asJSON, asReport bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}
	if asReport {
		fmt.Println(report.BuildMarkdown(result))
		return
	}

	if !result.Success {
		fmt.Printf("[%s] FAILED: %s\n", result.CaseID, result.Error)
		return
	}

	s := result.Summary
	fmt.Printf("[%s] MOIC %.2fx | IRR %.1f%% | Equity %.1f -> Proceeds %.1f | Paydown %.1f | Final cash %.1f (%s)\n",
		s.CaseID, s.MOIC, s.IRR*100, s.EntryEquity, s.ExitProceeds, s.TotalDebtPaydown, s.FinalCash, s.Currency)
}
