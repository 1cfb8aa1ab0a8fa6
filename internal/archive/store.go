// Package archive keeps a queryable SQLite history of annotation runs
// and their per-pair results, so agreement trends survive across runs.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"decksage/internal/consensus"
)

// Store manages annotation run history in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Run is one batch annotation run record.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	SummaryJSON string
}

// ArchivedResult is one pair result as stored for a run.
type ArchivedResult struct {
	RunID          string
	SubjectA       string
	SubjectB       string
	OverallAlpha   float64
	AgreementLevel string
	ConsensusJSON  string
	MetricsJSON    string
	CreatedAt      time.Time
}

// Open opens or creates the archive database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve archive db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure archive db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	store := &Store{
		DBPath: absPath,
		db:     db,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS annotation_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	summary_json TEXT
);

CREATE TABLE IF NOT EXISTS pair_results (
	run_id TEXT NOT NULL,
	subject_a TEXT NOT NULL,
	subject_b TEXT NOT NULL,
	overall_alpha REAL NOT NULL,
	agreement_level TEXT NOT NULL,
	consensus_json TEXT,
	metrics_json TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_run ON pair_results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_alpha ON pair_results(overall_alpha);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// StartRun records a new run in 'running' state.
func (s *Store) StartRun(runID string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO annotation_runs (id, started_at, status)
		VALUES (?, ?, 'running')
	`, runID, startedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run finished with the given status and summary.
func (s *Store) FinishRun(runID, status string, summary any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	finishedAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		UPDATE annotation_runs
		SET status = ?,
		    finished_at = ?,
		    summary_json = ?
		WHERE id = ?
	`, status, finishedAt, string(summaryJSON), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// SaveResult stores one pair result under a run.
func (s *Store) SaveResult(runID string, result *consensus.Result) error {
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	consensusJSON := ""
	if result.Consensus != nil {
		data, err := json.Marshal(result.Consensus)
		if err != nil {
			return fmt.Errorf("marshal consensus: %w", err)
		}
		consensusJSON = string(data)
	}

	_, err = s.db.Exec(`
		INSERT INTO pair_results (run_id, subject_a, subject_b, overall_alpha, agreement_level, consensus_json, metrics_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, result.SubjectA, result.SubjectB, result.Metrics.OverallAlpha,
		string(result.AgreementLevel), consensusJSON, string(metricsJSON),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert pair result: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status, summary_json
		FROM annotation_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		var finishedAt, summaryJSON sql.NullString
		if err := rows.Scan(&run.ID, &startedAt, &finishedAt, &run.Status, &summaryJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			run.FinishedAt = &t
		}
		if summaryJSON.Valid {
			run.SummaryJSON = summaryJSON.String
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ResultsForRun returns every pair result stored under a run.
func (s *Store) ResultsForRun(runID string) ([]ArchivedResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, subject_a, subject_b, overall_alpha, agreement_level, consensus_json, metrics_json, created_at
		FROM pair_results
		WHERE run_id = ?
		ORDER BY created_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// LowAgreementResults returns up to limit results with overall alpha
// below maxAlpha, worst first.
func (s *Store) LowAgreementResults(maxAlpha float64, limit int) ([]ArchivedResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, subject_a, subject_b, overall_alpha, agreement_level, consensus_json, metrics_json, created_at
		FROM pair_results
		WHERE overall_alpha < ?
		ORDER BY overall_alpha ASC
		LIMIT ?
	`, maxAlpha, limit)
	if err != nil {
		return nil, fmt.Errorf("query low agreement results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]ArchivedResult, error) {
	var results []ArchivedResult
	for rows.Next() {
		var r ArchivedResult
		var consensusJSON, metricsJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&r.RunID, &r.SubjectA, &r.SubjectB, &r.OverallAlpha,
			&r.AgreementLevel, &consensusJSON, &metricsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if consensusJSON.Valid {
			r.ConsensusJSON = consensusJSON.String
		}
		if metricsJSON.Valid {
			r.MetricsJSON = metricsJSON.String
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}
