package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lexrag/internal/models"
	"lexrag/internal/storage"
	"lexrag/internal/util"

	"github.com/jackc/pgx/v5"
)

// Postgres keeps the manifest next to the pgvector tables.
type Postgres struct {
	db storage.Querier

	schemaMu       sync.Mutex
	schemaPrepared bool
}

func NewPostgres(ctx context.Context, db storage.Querier) (*Postgres, error) {
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if p.schemaPrepared {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS lexrag_manifest (
  source TEXT PRIMARY KEY,
  category TEXT NOT NULL,
  checksum TEXT NOT NULL DEFAULT '',
  chunks INT NOT NULL DEFAULT 0,
  run_id TEXT NOT NULL DEFAULT '',
  ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lexrag_runs (
  run_id TEXT PRIMARY KEY,
  status TEXT NOT NULL CHECK (status IN ('staging','writing','failed')),
  sources TEXT[] NOT NULL DEFAULT '{}',
  records INT NOT NULL DEFAULT 0,
  batch_size INT NOT NULL DEFAULT 0,
  next_batch INT NOT NULL DEFAULT 0,
  last_error TEXT,
  started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := p.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure manifest schema: %w", err)
	}
	p.schemaPrepared = true
	return nil
}

func (p *Postgres) Sources(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.db.Query(ctx, `SELECT source FROM lexrag_manifest`)
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

func (p *Postgres) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `
SELECT source, category, checksum, chunks, run_id, ingested_at
FROM lexrag_manifest
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
		)
		if err := rows.Scan(&e.Source, &category, &e.Checksum, &e.Chunks, &e.RunID, &e.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		e.Category = models.Category(category)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest entries: %w", err)
	}
	return out, nil
}

func (p *Postgres) Add(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.IngestedAt.IsZero() {
			e.IngestedAt = time.Now().UTC()
		}
		batch.Queue(`
INSERT INTO lexrag_manifest (source, category, checksum, chunks, run_id, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source)
DO UPDATE SET
  category = EXCLUDED.category,
  checksum = EXCLUDED.checksum,
  chunks = EXCLUDED.chunks,
  run_id = EXCLUDED.run_id,
  ingested_at = EXCLUDED.ingested_at`,
			e.Source, string(e.Category), e.Checksum, e.Chunks, e.RunID, e.IngestedAt)
	}
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin manifest tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert manifest entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit manifest entries: %w", err)
	}
	return nil
}

func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `TRUNCATE lexrag_manifest, lexrag_runs`); err != nil {
		return fmt.Errorf("reset manifest: %w", err)
	}
	return nil
}

func (p *Postgres) PendingRun(ctx context.Context) (Run, bool, error) {
	var (
		r      Run
		status string
	)
	err := p.db.QueryRow(ctx, `
SELECT run_id, status, sources, records, batch_size, next_batch, COALESCE(last_error,''), started_at, updated_at
FROM lexrag_runs
ORDER BY started_at DESC
LIMIT 1`).Scan(&r.ID, &status, &r.Sources, &r.Records, &r.BatchSize, &r.NextBatch, &r.LastError, &r.StartedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("load pending run: %w", err)
	}
	r.Status = RunStatus(status)
	return r, true, nil
}

func (p *Postgres) SaveRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Sources == nil {
		run.Sources = []string{}
	}
	_, err := p.db.Exec(ctx, `
INSERT INTO lexrag_runs (run_id, status, sources, records, batch_size, next_batch, last_error, started_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, NOW())
ON CONFLICT (run_id)
DO UPDATE SET
  status = EXCLUDED.status,
  sources = EXCLUDED.sources,
  records = EXCLUDED.records,
  batch_size = EXCLUDED.batch_size,
  next_batch = EXCLUDED.next_batch,
  last_error = EXCLUDED.last_error,
  updated_at = NOW()`,
		run.ID, string(run.Status), run.Sources, run.Records, run.BatchSize, run.NextBatch, run.LastError, run.StartedAt)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Postgres) SetCursor(ctx context.Context, runID string, next int) error {
	tag, err := p.db.Exec(ctx, `UPDATE lexrag_runs SET next_batch=$2, updated_at=NOW() WHERE run_id=$1`, runID, next)
	if err != nil {
		return fmt.Errorf("set cursor for run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, util.ErrNotFound)
	}
	return nil
}

func (p *Postgres) DeleteRun(ctx context.Context, runID string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM lexrag_runs WHERE run_id=$1`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Close is a no-op; the pool belongs to storage.DB.
func (p *Postgres) Close() error {
	return nil
}
