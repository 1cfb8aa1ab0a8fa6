// Package dataset writes consensus annotations back into the training
// dataset as JSONL, with a unified-diff preview before anything is
// overwritten.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"decksage/internal/consensus"
)

// Record is one labeled pair row in the dataset file.
type Record struct {
	SubjectA       string  `json:"subject_a"`
	SubjectB       string  `json:"subject_b"`
	Score          float64 `json:"score"`
	Label          string  `json:"label"`
	Substitute     bool    `json:"substitute"`
	Rationale      string  `json:"rationale,omitempty"`
	Source         string  `json:"source"`
	OverallAlpha   float64 `json:"overall_alpha"`
	AgreementLevel string  `json:"agreement_level"`
}

// ExportReport summarizes one writeback.
type ExportReport struct {
	Added   int
	Updated int
	Total   int
	Diff    string
	DryRun  bool
}

// Load reads an existing dataset file. A missing file is an empty
// dataset.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("parse dataset line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return records, nil
}

// Export merges the consensus annotations from results into the
// dataset at path. Results without a consensus are skipped; a new
// record for an existing pair replaces it. With dryRun the file is
// left untouched and only the diff is reported.
func Export(path string, results []*consensus.Result, dryRun bool) (*ExportReport, error) {
	existing, err := Load(path)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]Record, len(existing))
	var order []string
	for _, rec := range existing {
		key := pairKey(rec.SubjectA, rec.SubjectB)
		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}
		merged[key] = rec
	}

	report := &ExportReport{DryRun: dryRun}
	for _, result := range results {
		if result.Consensus == nil {
			continue
		}
		rec := Record{
			SubjectA:       result.SubjectA,
			SubjectB:       result.SubjectB,
			Score:          result.Consensus.Score,
			Label:          result.Consensus.Label,
			Substitute:     result.Consensus.Substitute,
			Rationale:      result.Consensus.Rationale,
			Source:         "consensus",
			OverallAlpha:   result.Metrics.OverallAlpha,
			AgreementLevel: string(result.AgreementLevel),
		}
		key := pairKey(rec.SubjectA, rec.SubjectB)
		if _, seen := merged[key]; seen {
			report.Updated++
		} else {
			report.Added++
			order = append(order, key)
		}
		merged[key] = rec
	}
	report.Total = len(merged)

	oldText := renderRecords(existing)
	newRecords := make([]Record, 0, len(order))
	for _, key := range order {
		newRecords = append(newRecords, merged[key])
	}
	newText, err := renderText(newRecords)
	if err != nil {
		return nil, err
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: filepath.Base(path),
		ToFile:   filepath.Base(path) + ".new",
		Context:  3,
	}
	diffText, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, fmt.Errorf("render dataset diff: %w", err)
	}
	report.Diff = diffText

	if dryRun {
		return report, nil
	}

	if err := writeAtomic(path, newText); err != nil {
		return nil, err
	}
	return report, nil
}

func renderRecords(records []Record) string {
	text, err := renderText(records)
	if err != nil {
		return ""
	}
	return text
}

func renderText(records []Record) (string, error) {
	var b strings.Builder
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("encode dataset record %s/%s: %w", rec.SubjectA, rec.SubjectB, err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func writeAtomic(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

// pairKey normalizes an unordered subject pair into a stable map key.
func pairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "\x00" + pair[1]
}
