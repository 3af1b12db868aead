package results

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sheetscan/omr-engine/internal/batch"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound reports a run id with no stored record.
var ErrRunNotFound = errors.New("run not found")

// storePragmas tune the database for one writing batch plus concurrent
// readers: WAL keeps readers off the writer's lock, the busy timeout
// absorbs short contention before the retry layer sees it.
var storePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Store is the SQLite-backed batch history: one row per run, one row per
// processed file. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the results database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	for _, pragma := range storePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply results schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunRecord is one batch run as stored.
type RunRecord struct {
	RunID      string         `json:"run_id"`
	StartedAt  int64          `json:"started_at"`
	FinishedAt int64          `json:"finished_at,omitempty"`
	Files      int            `json:"files"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Counters   map[string]int `json:"counters,omitempty"`
}

// Finished reports whether the run recorded its summary.
func (r *RunRecord) Finished() bool {
	return r.FinishedAt != 0
}

// Run is an open batch run. It implements the scheduler's sink, so
// results stream into the store as the batch emits them.
type Run struct {
	RunID     string
	StartedAt int64

	store *Store
}

// BeginRun registers a new batch run and returns its handle.
func (s *Store) BeginRun() (*Run, error) {
	run := &Run{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().Unix(),
		store:     s,
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`,
			run.RunID, run.StartedAt,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin run: %w", err)
	}
	return run, nil
}

// Append stores one file result under the run.
func (r *Run) Append(fr *batch.FileResult) error {
	payload, err := json.Marshal(fr)
	if err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", fr.FilePath, err)
	}

	var total interface{}
	if fr.Score != nil {
		total = fr.Score.Total
	}

	return retryOnBusy(func() error {
		_, err := r.store.db.Exec(
			`INSERT INTO file_results (run_id, input_index, file_path, multi_marked, failed, total_score, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, fr.InputIndex, fr.FilePath, fr.MultiMarked, fr.Failed(), total, string(payload),
		)
		return err
	})
}

// Finish records the batch summary on the run.
func (r *Run) Finish(summary *batch.Summary) error {
	counters, err := json.Marshal(summary.Counters)
	if err != nil {
		return fmt.Errorf("failed to encode counters: %w", err)
	}

	return retryOnBusy(func() error {
		_, err := r.store.db.Exec(
			`UPDATE runs SET finished_at = ?, files = ?, succeeded = ?, failed = ?, counters = ? WHERE run_id = ?`,
			time.Now().Unix(), summary.Files, summary.Succeeded, summary.Failed, string(counters), r.RunID,
		)
		return err
	})
}

// Runs lists every stored run, newest first.
func (s *Store) Runs() ([]*RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, started_at, finished_at, files, succeeded, failed, counters
		 FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a single run by ID.
func (s *Store) Run(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, started_at, finished_at, files, succeeded, failed, counters
		 FROM runs WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Results returns the run's file results in input order.
func (s *Store) Results(runID string) ([]*batch.FileResult, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM file_results WHERE run_id = ? ORDER BY input_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []*batch.FileResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		var fr batch.FileResult
		if err := json.Unmarshal([]byte(payload), &fr); err != nil {
			return nil, fmt.Errorf("decode result row: %w", err)
		}
		results = append(results, &fr)
	}
	return results, rows.Err()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var r RunRecord
	var finished sql.NullInt64
	var counters sql.NullString
	err := row.Scan(&r.RunID, &r.StartedAt, &finished, &r.Files, &r.Succeeded, &r.Failed, &counters)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = finished.Int64
	}
	if counters.Valid && counters.String != "" {
		if err := json.Unmarshal([]byte(counters.String), &r.Counters); err != nil {
			return nil, fmt.Errorf("decode run counters: %w", err)
		}
	}
	return &r, nil
}

// Multi fans one result out to several sinks in order. The first failing
// sink stops the fan-out, mirroring how a single failing sink aborts the
// batch.
type Multi []batch.Sink

func (m Multi) Append(r *batch.FileResult) error {
	for _, s := range m {
		if err := s.Append(r); err != nil {
			return err
		}
	}
	return nil
}
