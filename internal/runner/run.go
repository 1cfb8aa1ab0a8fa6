// Package runner drives one batch annotation run: select candidate
// pairs, fan each one out to the annotators, escalate the troublesome
// ones, and record everything under runs/<id>/.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"decksage/internal/archive"
	"decksage/internal/audit"
	"decksage/internal/config"
	"decksage/internal/consensus"
	"decksage/internal/dataset"
	"decksage/internal/notify"
	"decksage/internal/queue"
	"decksage/internal/uncertainty"
	"decksage/internal/workspace"
)

// Options wires the run's collaborators. Selector, Archive, Audit and
// Notifier are optional; the rest are required.
type Options struct {
	Workspace    *workspace.Workspace
	Config       *config.Config
	Orchestrator *consensus.Orchestrator
	Queue        *queue.Queue
	Selector     *uncertainty.Selector
	Archive      *archive.Store
	Audit        *audit.Logger
	Notifier     *notify.Notifier
	// DatasetPath, when set, receives accepted consensus annotations
	// after the run.
	DatasetPath string
	DryRun      bool
}

// Summary is the outcome of one run.
type Summary struct {
	RunID          string    `json:"run_id"`
	RunDir         string    `json:"run_dir"`
	PairsTotal     int       `json:"pairs_total"`
	PairsAnnotated int       `json:"pairs_annotated"`
	PairsFailed    int       `json:"pairs_failed"`
	Accepted       int       `json:"accepted"`
	Rejected       int       `json:"rejected"`
	Escalated      int       `json:"escalated"`
	DatasetAdded   int       `json:"dataset_added"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run annotates a batch of candidate pairs. When a Selector is
// configured the candidates are first narrowed to the most uncertain
// ones and high-uncertainty pairs are escalated; every annotated pair
// with low agreement is escalated too.
func Run(ctx context.Context, pairs []uncertainty.Pair, opts Options) (*Summary, error) {
	if opts.Workspace == nil || opts.Config == nil || opts.Orchestrator == nil || opts.Queue == nil {
		return nil, fmt.Errorf("workspace, config, orchestrator and queue are required")
	}
	cfg := opts.Config

	runID := uuid.NewString()
	runDir := filepath.Join(opts.Workspace.RunsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure run dir: %w", err)
	}

	summary := &Summary{
		RunID:     runID,
		RunDir:    runDir,
		StartedAt: time.Now().UTC(),
	}

	if opts.Audit != nil {
		_ = opts.Audit.LogEvent("runner", audit.EventRunStarted, map[string]any{
			"run_id": runID,
			"pairs":  len(pairs),
		})
	}
	if opts.Archive != nil {
		if err := opts.Archive.StartRun(runID, summary.StartedAt); err != nil {
			fmt.Fprintf(os.Stderr, "failed to record run start: %v\n", err)
		}
	}

	if opts.Selector != nil {
		selected := opts.Selector.SelectUncertainPairs(pairs, cfg.TopK(), cfg.MinUncertainty(), cfg.UseDiversity(), nil)

		escalated, err := queue.EscalateUncertainPairs(opts.Queue, selected, cfg.Domain, cfg.EscalationUncertainty())
		if err != nil {
			return summary, err
		}
		summary.Escalated += escalated

		pairs = pairs[:0]
		for _, u := range selected {
			pairs = append(pairs, uncertainty.Pair{A: u.SubjectA, B: u.SubjectB})
		}
	}
	summary.PairsTotal = len(pairs)

	resultsPath := filepath.Join(runDir, "results.jsonl")
	resultsFile, err := os.Create(resultsPath)
	if err != nil {
		return summary, fmt.Errorf("create results file: %w", err)
	}
	defer resultsFile.Close()
	enc := json.NewEncoder(resultsFile)

	var results []*consensus.Result
	for _, pair := range pairs {
		result, err := opts.Orchestrator.AnnotatePair(ctx, pair.A, pair.B, "")
		if err != nil {
			summary.PairsFailed++
			fmt.Fprintf(os.Stderr, "pair %s / %s failed: %v\n", pair.A, pair.B, err)
			if opts.Audit != nil {
				_ = opts.Audit.LogEvent("runner", audit.EventPairFailed, map[string]any{
					"run_id":    runID,
					"subject_a": pair.A,
					"subject_b": pair.B,
					"error":     err.Error(),
				})
			}
			continue
		}
		summary.PairsAnnotated++
		results = append(results, result)

		if err := enc.Encode(result); err != nil {
			return summary, fmt.Errorf("write result: %w", err)
		}
		if opts.Audit != nil {
			_ = opts.Audit.LogEvent("runner", audit.EventPairAnnotated, map[string]any{
				"run_id":          runID,
				"subject_a":       pair.A,
				"subject_b":       pair.B,
				"overall_alpha":   result.Metrics.OverallAlpha,
				"agreement_level": string(result.AgreementLevel),
			})
		}
		if opts.Archive != nil {
			if err := opts.Archive.SaveResult(runID, result); err != nil {
				fmt.Fprintf(os.Stderr, "failed to archive result: %v\n", err)
			}
		}
	}

	escalated, err := queue.EscalateLowAgreement(opts.Queue, results, cfg.Domain, cfg.EscalationAlpha())
	if err != nil {
		return summary, err
	}
	summary.Escalated += escalated

	accepted, rejected := opts.Orchestrator.FilterByIAA(results, nil)
	summary.Accepted = len(accepted)
	summary.Rejected = len(rejected)

	if opts.DatasetPath != "" {
		report, err := dataset.Export(opts.DatasetPath, accepted, opts.DryRun)
		if err != nil {
			return summary, err
		}
		summary.DatasetAdded = report.Added
		if opts.Audit != nil && !opts.DryRun {
			_ = opts.Audit.LogEvent("runner", audit.EventDatasetWritten, map[string]any{
				"run_id":  runID,
				"dataset": opts.DatasetPath,
				"added":   report.Added,
				"updated": report.Updated,
			})
		}
	}

	summary.FinishedAt = time.Now().UTC()
	if err := writeSummary(runDir, summary); err != nil {
		return summary, err
	}

	if opts.Archive != nil {
		status := "succeeded"
		if summary.PairsFailed > 0 {
			status = "partial"
		}
		if err := opts.Archive.FinishRun(runID, status, summary); err != nil {
			fmt.Fprintf(os.Stderr, "failed to record run finish: %v\n", err)
		}
	}
	if opts.Audit != nil {
		_ = opts.Audit.LogEvent("runner", audit.EventRunFinished, map[string]any{
			"run_id":    runID,
			"annotated": summary.PairsAnnotated,
			"failed":    summary.PairsFailed,
			"escalated": summary.Escalated,
		})
	}
	if opts.Notifier != nil {
		title, message := notify.FormatRunComplete(runID, summary.PairsTotal, summary.PairsFailed, summary.Escalated)
		if err := opts.Notifier.Send(title, message); err != nil {
			fmt.Fprintf(os.Stderr, "notification failed: %v\n", err)
		}
	}

	return summary, nil
}

func writeSummary(runDir string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	path := filepath.Join(runDir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}
