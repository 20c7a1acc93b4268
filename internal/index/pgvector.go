package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lexrag/internal/models"
	"lexrag/internal/storage"
	"lexrag/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgvector caps ANN index support at this many dimensions; wider vectors are scanned exactly.
const pgvectorMaxIndexedDims = 2000

// PGVector stores records in one Postgres table per index, with a registry row holding the spec.
type PGVector struct {
	pool   storage.Querier
	name   string
	table  string
	metric Metric
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

func NewPGVector(pool storage.Querier, name string, metric Metric) *PGVector {
	if metric == "" {
		metric = MetricCosine
	}
	return &PGVector{pool: pool, name: name, table: TableName(name), metric: metric}
}

// TableName maps an index name onto a safe Postgres identifier.
func TableName(name string) string {
	t := nonIdent.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return "lx_" + strings.Trim(t, "_")
}

func (p *PGVector) Describe(ctx context.Context) (Status, error) {
	var registered bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('lexrag_indexes') IS NOT NULL`).Scan(&registered); err != nil {
		return Status{}, fmt.Errorf("check index registry: %w", err)
	}
	if !registered {
		return Status{}, nil
	}
	var dim int
	err := p.pool.QueryRow(ctx, `SELECT dimension FROM lexrag_indexes WHERE name = $1`, p.name).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("describe index %s: %w", p.name, err)
	}
	return Status{Exists: true, Ready: true, Dimension: dim}, nil
}

func (p *PGVector) Create(ctx context.Context, spec Spec) error {
	table := pgx.Identifier{p.table}.Sanitize()
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS lexrag_indexes (
  name TEXT PRIMARY KEY,
  dimension INT NOT NULL,
  metric TEXT NOT NULL,
  cloud TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL DEFAULT '',
  embedding vector(%d) NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table, spec.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source)`, pgx.Identifier{p.table + "_source_idx"}.Sanitize(), table),
	}
	if spec.Dimension <= pgvectorMaxIndexedDims {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
			pgx.Identifier{p.table + "_embedding_idx"}.Sanitize(), table, opsClass(spec.Metric)))
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index schema: %w", err)
		}
	}
	if _, err := p.pool.Exec(ctx, `
INSERT INTO lexrag_indexes (name, dimension, metric, cloud, region)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO NOTHING`, p.name, spec.Dimension, string(spec.Metric), spec.Cloud, spec.Region); err != nil {
		return fmt.Errorf("register index %s: %w", p.name, err)
	}
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return util.Transient(fmt.Errorf("begin tx upsert records: %w", err))
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	sql := fmt.Sprintf(`
INSERT INTO %s (id, source, embedding, metadata, updated_at)
VALUES ($1, $2, $3::vector, $4::jsonb, now())
ON CONFLICT (id)
DO UPDATE SET
  source = EXCLUDED.source,
  embedding = EXCLUDED.embedding,
  metadata = EXCLUDED.metadata,
  updated_at = now()`, pgx.Identifier{p.table}.Sanitize())
	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", r.ID, err)
		}
		batch.Queue(sql, r.ID, r.Source(), ToLiteral(r.Values), string(meta))
	}
	br := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert record %s: %w", r.ID, classifyPG(err))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close upsert batch: %w", classifyPG(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return util.Transient(fmt.Errorf("commit records tx: %w", err))
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, req QueryRequest) ([]models.Match, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}
	op, scoreExpr := distanceSQL(p.metric)
	args := []any{ToLiteral(req.Vector), topK}
	filterSQL := ""
	if !req.Filter.IsAll() {
		filterSQL = " WHERE source = ANY($3)"
		args = append(args, req.Filter.Sources)
	}
	query := fmt.Sprintf(`
SELECT id, %s AS score, metadata
FROM %s%s
ORDER BY embedding %s $1::vector
LIMIT $2`, scoreExpr, pgx.Identifier{p.table}.Sanitize(), filterSQL, op)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", classifyPG(err))
	}
	defer rows.Close()

	out := make([]models.Match, 0, topK)
	for rows.Next() {
		var (
			m   models.Match
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.Score, &raw); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode match metadata %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", classifyPG(err))
	}
	return out, nil
}

func (p *PGVector) DeleteAll(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, pgx.Identifier{p.table}.Sanitize())); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return nil
		}
		return fmt.Errorf("truncate %s: %w", p.table, classifyPG(err))
	}
	return nil
}

func (p *PGVector) DeleteSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE source = ANY($1)`, pgx.Identifier{p.table}.Sanitize())
	if _, err := p.pool.Exec(ctx, sql, sources); err != nil {
		return fmt.Errorf("delete sources from %s: %w", p.table, classifyPG(err))
	}
	return nil
}

func opsClass(m Metric) string {
	switch m {
	case MetricEuclidean:
		return "vector_l2_ops"
	case MetricDotProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func distanceSQL(m Metric) (op, score string) {
	switch m {
	case MetricEuclidean:
		return "<->", "1 / (1 + (embedding <-> $1::vector))"
	case MetricDotProduct:
		return "<#>", "-(embedding <#> $1::vector)"
	default:
		return "<=>", "1 - (embedding <=> $1::vector)"
	}
}

// classifyPG marks connection-level failures as transient and rejected values
// (wrong vector dimension, bad text) as data errors. Other SQL errors stay permanent.
func classifyPG(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "40001", pgErr.Code == "57P01":
			return util.Transient(err)
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%w: %w", util.ErrData, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return util.Transient(err)
	}
	return err
}

// ToLiteral renders a vector in pgvector text form.
func ToLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
