// Package history keeps a SQLite log of quality check runs.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
)

// Run is one recorded check.
type Run struct {
	ID         string    `json:"id"`
	Workspace  string    `json:"workspace"`
	StartedAt  time.Time `json:"started_at"`
	Rows       int       `json:"rows"`
	Rules      int       `json:"rules"`
	Issues     int       `json:"issues"`
	Quality    *float64  `json:"quality"`
	Compliance *float64  `json:"compliance"`
}

// NewRun summarises a check result and an optional compliance report.
func NewRun(workspace string, res *engine.Result, rep *compliance.Report) Run {
	r := Run{Workspace: workspace, StartedAt: time.Now().UTC()}
	if res != nil {
		r.StartedAt = res.RanAt
		r.Rows = res.Rows
		r.Rules = len(res.RuleScores)
		r.Issues = len(res.Issues)
		r.Quality = res.DatasetScore
	}
	if rep != nil {
		r.Compliance = rep.Score
	}
	return r
}

// Store is a SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "history: open")
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "history: exec %s", pragma)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	workspace  TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	row_count  INTEGER NOT NULL,
	rules      INTEGER NOT NULL,
	issues     INTEGER NOT NULL,
	quality    REAL,
	compliance REAL
);

CREATE INDEX IF NOT EXISTS idx_runs_workspace_started ON runs(workspace, started_at);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "history: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts r, assigning an id when empty, and returns the stored run.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workspace, started_at, row_count, rules, issues, quality, compliance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Workspace, r.StartedAt.UnixNano(), r.Rows, r.Rules, r.Issues, nullable(r.Quality), nullable(r.Compliance))
	if err != nil {
		return Run{}, eris.Wrap(err, "history: insert run")
	}
	return r, nil
}

// List returns the newest runs of workspace first; limit <= 0 means all.
func (s *Store) List(ctx context.Context, workspace string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace, started_at, row_count, rules, issues, quality, compliance
		 FROM runs WHERE workspace = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		workspace, limit)
	if err != nil {
		return nil, eris.Wrap(err, "history: list runs")
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			r       Run
			started int64
			q, c    sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Workspace, &started, &r.Rows, &r.Rules, &r.Issues, &q, &c); err != nil {
			return nil, eris.Wrap(err, "history: scan run")
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if q.Valid {
			r.Quality = &q.Float64
		}
		if c.Valid {
			r.Compliance = &c.Float64
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "history: iterate runs")
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
