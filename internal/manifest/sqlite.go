package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"lexrag/internal/models"
	"lexrag/internal/util"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifest_entries (
	source      TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	chunks      INTEGER NOT NULL DEFAULT 0,
	run_id      TEXT NOT NULL DEFAULT '',
	ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS manifest_runs (
	run_id     TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	records    INTEGER NOT NULL DEFAULT 0,
	batch_size INTEGER NOT NULL DEFAULT 0,
	next_batch INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLite keeps the manifest in a single local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, util.ConfigError("sqlite manifest path is empty")
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite manifest: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure manifest schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Sources(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source FROM manifest_entries`)
	if err != nil {
		return nil, fmt.Errorf("list manifest sources: %w", err)
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan manifest source: %w", err)
		}
		out[src] = struct{}{}
	}
	return out, rows.Err()
}

func (s *SQLite) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT source, category, checksum, chunks, run_id, ingested_at
FROM manifest_entries
ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e        Entry
			category string
			at       string
		)
		if err := rows.Scan(&e.Source, &category, &e.Checksum, &e.Chunks, &e.RunID, &at); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		e.Category = models.Category(category)
		e.IngestedAt = parseTime(at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest entries: %w", err)
	}
	return out, nil
}

func (s *SQLite) Add(ctx context.Context, entries ...Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin manifest tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range entries {
		if e.IngestedAt.IsZero() {
			e.IngestedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO manifest_entries (source, category, checksum, chunks, run_id, ingested_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (source) DO UPDATE SET
  category = excluded.category,
  checksum = excluded.checksum,
  chunks = excluded.chunks,
  run_id = excluded.run_id,
  ingested_at = excluded.ingested_at`,
			e.Source, string(e.Category), e.Checksum, e.Chunks, e.RunID, formatTime(e.IngestedAt))
		if err != nil {
			return fmt.Errorf("upsert manifest entry %s: %w", e.Source, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manifest entries: %w", err)
	}
	return nil
}

func (s *SQLite) Reset(ctx context.Context) error {
	for _, table := range []string{"manifest_entries", "manifest_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset manifest %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLite) PendingRun(ctx context.Context) (Run, bool, error) {
	var (
		r       Run
		status  string
		sources string
		started string
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, status, sources, records, batch_size, next_batch, last_error, started_at, updated_at
FROM manifest_runs
ORDER BY started_at DESC
LIMIT 1`).Scan(&r.ID, &status, &sources, &r.Records, &r.BatchSize, &r.NextBatch, &r.LastError, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("load pending run: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return Run{}, false, fmt.Errorf("decode run sources: %w", err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = parseTime(started)
	r.UpdatedAt = parseTime(updated)
	return r, true, nil
}

func (s *SQLite) SaveRun(ctx context.Context, run Run) error {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("encode run sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO manifest_runs (run_id, status, sources, records, batch_size, next_batch, last_error, started_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
  status = excluded.status,
  sources = excluded.sources,
  records = excluded.records,
  batch_size = excluded.batch_size,
  next_batch = excluded.next_batch,
  last_error = excluded.last_error,
  updated_at = excluded.updated_at`,
		run.ID, string(run.Status), string(sources), run.Records, run.BatchSize, run.NextBatch, run.LastError,
		formatTime(run.StartedAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLite) SetCursor(ctx context.Context, runID string, next int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE manifest_runs SET next_batch = ?, updated_at = ? WHERE run_id = ?`,
		next, formatTime(time.Now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("set cursor for run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, util.ErrNotFound)
	}
	return nil
}

func (s *SQLite) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM manifest_runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
