package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	config_json TEXT NOT NULL DEFAULT '',
	units       INTEGER NOT NULL DEFAULT 0,
	completed   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS unit_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	unit        TEXT NOT NULL,
	pipeline    TEXT NOT NULL,
	status      TEXT NOT NULL,
	failed_step TEXT NOT NULL DEFAULT '',
	code        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_unit_results_run ON unit_results(run_id);
`

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and ensures the schema.
// Creates the parent directory (e.g. the logs dir) if it does not exist.
func Open(path string) (*SqlStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SqlStore{db: db}, nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) CreateRun(r *Run) error {
	if r == nil || r.ID == "" {
		return errors.New("run needs an id")
	}
	if r.StartedAt == "" {
		r.StartedAt = nowUTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs(id, started_at, config_json, units) VALUES(?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.ConfigJSON, r.Units,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SqlStore) FinishRun(id string, completed, failed int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, completed = ?, failed = ? WHERE id = ?`,
		nowUTC(), completed, failed, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun returns the run by id, or nil if not found.
func (s *SqlStore) GetRun(id string) (*Run, error) {
	var r Run
	var finished sql.NullString
	err := s.db.QueryRow(
		`SELECT id, started_at, finished_at, config_json, units, completed, failed
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.StartedAt, &finished, &r.ConfigJSON, &r.Units, &r.Completed, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.FinishedAt = nullStr(finished)
	return &r, nil
}

// ListRuns returns all runs, oldest first.
func (s *SqlStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, config_json, units, completed, failed
		 FROM runs ORDER BY started_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var list []*Run
	for rows.Next() {
		var r Run
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.ConfigJSON,
			&r.Units, &r.Completed, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FinishedAt = nullStr(finished)
		list = append(list, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return list, nil
}

func (s *SqlStore) AddUnitResult(res *UnitResult) error {
	if res == nil {
		return errors.New("result is nil")
	}
	out, err := s.db.Exec(
		`INSERT INTO unit_results(run_id, unit, pipeline, status, failed_step, code)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Unit, res.Pipeline, res.Status, res.FailedStep, res.Code,
	)
	if err != nil {
		return fmt.Errorf("insert unit result: %w", err)
	}
	id, err := out.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	res.ID = id
	return nil
}

// ListUnitResults returns the run's unit results in insertion order.
func (s *SqlStore) ListUnitResults(runID string) ([]*UnitResult, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, unit, pipeline, status, failed_step, code
		 FROM unit_results WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unit results: %w", err)
	}
	defer rows.Close()
	var list []*UnitResult
	for rows.Next() {
		var r UnitResult
		if err := rows.Scan(&r.ID, &r.RunID, &r.Unit, &r.Pipeline,
			&r.Status, &r.FailedStep, &r.Code); err != nil {
			return nil, fmt.Errorf("scan unit result: %w", err)
		}
		list = append(list, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unit results: %w", err)
	}
	return list, nil
}
