// Package store keeps validation runs in SQLite so they can be inspected,
// compared against a baseline and re-gated under new tolerances.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	baseline_id     TEXT,
	dataset         TEXT NOT NULL,
	reference       TEXT NOT NULL,
	candidate       TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	records         INTEGER NOT NULL,
	pass_rate       REAL NOT NULL,
	verdict         TEXT NOT NULL,
	tolerances_json TEXT NOT NULL,
	summary_json    TEXT NOT NULL,
	FOREIGN KEY (baseline_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS record_results (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	record_id      TEXT NOT NULL,
	status         TEXT NOT NULL,
	reason         TEXT,
	error_kind     TEXT,
	duration_ns    INTEGER NOT NULL,
	reference_json TEXT,
	candidate_json TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS comparisons (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	metric        TEXT NOT NULL,
	reference     REAL,
	candidate     REAL,
	delta         REAL,
	rel_delta_pct REAL,
	tol_kind      TEXT NOT NULL,
	tol_threshold REAL NOT NULL,
	outcome       TEXT NOT NULL,
	reason        TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_comparisons_run ON comparisons(run_id, record_id);

CREATE TABLE IF NOT EXISTS baseline (
	id     INTEGER PRIMARY KEY CHECK (id = 1),
	run_id TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`
// #endregion schema

// timeFormat is RFC 3339 with fixed-width nanoseconds so stored timestamps
// sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store manages validation runs in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// Open opens a SQLite database and runs migrations. Use ":memory:" for an
// ephemeral store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region save-run
// SaveRun stores a report with its tolerances and returns the run ID, which
// is id or a fresh UUID when id is empty. The current baseline, if any, is
// recorded on the run.
func (s *Store) SaveRun(id, dataset string, rep parity.Report, tolerances parity.ToleranceSpec) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	finished := time.Now().UTC()

	tolJSON, err := json.Marshal(tolerances)
	if err != nil {
		return "", fmt.Errorf("marshal tolerances: %w", err)
	}
	sumJSON, err := json.Marshal(rep.Summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var baseline sql.NullString
	if err := tx.QueryRow(`SELECT run_id FROM baseline WHERE id = 1`).Scan(&baseline); err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("get baseline: %w", err)
	}

	// 1. Run header
	_, err = tx.Exec(
		`INSERT INTO runs (run_id, baseline_id, dataset, reference, candidate, started_at, finished_at,
		                   records, pass_rate, verdict, tolerances_json, summary_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, baseline, dataset, rep.Reference, rep.Candidate,
		rep.StartedAt.UTC().Format(timeFormat), finished.Format(timeFormat),
		rep.Summary.Records, rep.Summary.PassRate, string(rep.Summary.Verdict),
		string(tolJSON), string(sumJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	// 2. Records and comparisons
	for seq, r := range rep.Records {
		refJSON, err := marshalRecord(r.Reference)
		if err != nil {
			return "", err
		}
		candJSON, err := marshalRecord(r.Candidate)
		if err != nil {
			return "", err
		}
		_, err = tx.Exec(
			`INSERT INTO record_results (run_id, seq, record_id, status, reason, error_kind, duration_ns, reference_json, candidate_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, seq, r.ID, string(r.Status), nullIfEmpty(r.Reason), nullIfEmpty(r.ErrorKind),
			int64(r.Duration), refJSON, candJSON,
		)
		if err != nil {
			return "", fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		for _, c := range r.Comparisons {
			_, err = tx.Exec(
				`INSERT INTO comparisons (run_id, record_id, metric, reference, candidate, delta, rel_delta_pct,
				                          tol_kind, tol_threshold, outcome, reason)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, r.ID, string(c.Metric), nullValue(c.Reference), nullValue(c.Candidate),
				nullValue(c.Delta), nullValue(c.RelDeltaPct),
				string(c.Tolerance.Kind), c.Tolerance.Threshold, string(c.Outcome), nullIfEmpty(c.Reason),
			)
			if err != nil {
				return "", fmt.Errorf("insert comparison %s/%s: %w", r.ID, c.Metric, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	log.Printf("[STORE] saved run %s: %d records, verdict=%s", id, len(rep.Records), rep.Summary.Verdict)
	return id, nil
}
// #endregion save-run

// #region baseline
// SetBaseline marks runID as the baseline future runs are compared with.
func (s *Store) SetBaseline(runID string) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	_, err := s.db.Exec(
		`INSERT INTO baseline (id, run_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id`, runID)
	if err != nil {
		return fmt.Errorf("set baseline: %w", err)
	}
	return nil
}

// Baseline returns the baseline run header. ok is false when none is set.
func (s *Store) Baseline() (info RunInfo, ok bool, err error) {
	var id string
	err = s.db.QueryRow(`SELECT run_id FROM baseline WHERE id = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return RunInfo{}, false, nil
	}
	if err != nil {
		return RunInfo{}, false, fmt.Errorf("get baseline: %w", err)
	}
	info, err = s.getInfo(id)
	if err != nil {
		return RunInfo{}, false, err
	}
	return info, true, nil
}
// #endregion baseline

// #region queries
const runColumns = `run_id, baseline_id, dataset, reference, candidate, started_at, finished_at, records, pass_rate, verdict`

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (RunInfo, error) {
	var info RunInfo
	var baseline sql.NullString
	var started, finished, verdict string
	if err := row.Scan(&info.ID, &baseline, &info.Dataset, &info.Reference, &info.Candidate,
		&started, &finished, &info.Records, &info.PassRate, &verdict); err != nil {
		return RunInfo{}, err
	}
	info.BaselineID = baseline.String
	info.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	info.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	info.Verdict = parity.Verdict(verdict)
	return info, nil
}

func (s *Store) getInfo(id string) (RunInfo, error) {
	info, err := scanInfo(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if err != nil {
		return RunInfo{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return info, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunInfo, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// GetRun loads a run with all of its records and comparisons.
func (s *Store) GetRun(id string) (Run, error) {
	var run Run
	var tolJSON, sumJSON string
	info, err := scanInfo(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	run.RunInfo = info
	if err := s.db.QueryRow(`SELECT tolerances_json, summary_json FROM runs WHERE run_id = ?`, id).Scan(&tolJSON, &sumJSON); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tolJSON), &run.Tolerances); err != nil {
		return Run{}, fmt.Errorf("unmarshal tolerances: %w", err)
	}
	if err := json.Unmarshal([]byte(sumJSON), &run.Summary); err != nil {
		return Run{}, fmt.Errorf("unmarshal summary: %w", err)
	}

	results, err := s.loadResults(id)
	if err != nil {
		return Run{}, err
	}
	run.Results = results
	return run, nil
}

func (s *Store) loadResults(runID string) ([]parity.RecordResult, error) {
	rows, err := s.db.Query(
		`SELECT record_id, status, reason, error_kind, duration_ns, reference_json, candidate_json
		 FROM record_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var results []parity.RecordResult
	index := make(map[string]int)
	for rows.Next() {
		var r parity.RecordResult
		var status string
		var reason, kind, refJSON, candJSON sql.NullString
		var dur int64
		if err := rows.Scan(&r.ID, &status, &reason, &kind, &dur, &refJSON, &candJSON); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Status = parity.RecordStatus(status)
		r.Reason = reason.String
		r.ErrorKind = kind.String
		r.Duration = time.Duration(dur)
		if r.Reference, err = unmarshalRecord(refJSON); err != nil {
			return nil, err
		}
		if r.Candidate, err = unmarshalRecord(candJSON); err != nil {
			return nil, err
		}
		index[r.ID] = len(results)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crow, err := s.db.Query(
		`SELECT record_id, metric, reference, candidate, delta, rel_delta_pct, tol_kind, tol_threshold, outcome, reason
		 FROM comparisons WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load comparisons: %w", err)
	}
	defer crow.Close()
	for crow.Next() {
		var recordID, metric, kind, outcome string
		var ref, cand, delta, rel sql.NullFloat64
		var reason sql.NullString
		var c parity.Comparison
		if err := crow.Scan(&recordID, &metric, &ref, &cand, &delta, &rel, &kind, &c.Tolerance.Threshold, &outcome, &reason); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		c.Metric = hrv.Metric(metric)
		c.Reference, c.Candidate = fromNull(ref), fromNull(cand)
		c.Delta, c.RelDeltaPct = fromNull(delta), fromNull(rel)
		c.Tolerance.Kind = parity.ToleranceKind(kind)
		c.Outcome = parity.Outcome(outcome)
		c.Reason = reason.String
		if i, ok := index[recordID]; ok {
			results[i].Comparisons = append(results[i].Comparisons, c)
		}
	}
	return results, crow.Err()
}
// #endregion queries

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullValue(v hrv.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	return nil
}

func fromNull(n sql.NullFloat64) hrv.Value {
	if !n.Valid {
		return hrv.Undefined()
	}
	return hrv.Defined(n.Float64)
}

func marshalRecord(r *hrv.Record) (any, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

func unmarshalRecord(s sql.NullString) (*hrv.Record, error) {
	if !s.Valid {
		return nil, nil
	}
	var r hrv.Record
	if err := json.Unmarshal([]byte(s.String), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}
// #endregion helpers
