// Package manifest records which sources have been ingested and tracks the
// progress of the ingestion run that is currently writing to the index.
package manifest

import (
	"context"
	"sort"
	"strings"
	"time"

	"lexrag/internal/models"
	"lexrag/internal/storage"
	"lexrag/internal/util"
)

type RunStatus string

const (
	RunStaging RunStatus = "staging"
	RunWriting RunStatus = "writing"
	RunFailed  RunStatus = "failed"
)

// Entry is one fully ingested source.
type Entry struct {
	Source     string          `json:"source"`
	Category   models.Category `json:"category"`
	Checksum   string          `json:"checksum"`
	Chunks     int             `json:"chunks"`
	RunID      string          `json:"run_id"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// Run is an ingestion run whose staged records are not yet all in the index.
// NextBatch is the cursor: every batch below it has been upserted.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Sources   []string  `json:"sources"`
	Records   int       `json:"records"`
	BatchSize int       `json:"batch_size"`
	NextBatch int       `json:"next_batch"`
	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Run) Batches() int {
	if r.BatchSize <= 0 || r.Records <= 0 {
		return 0
	}
	return (r.Records + r.BatchSize - 1) / r.BatchSize
}

func (r Run) Done() bool {
	return r.NextBatch >= r.Batches()
}

type Store interface {
	Sources(ctx context.Context) (map[string]struct{}, error)
	Entries(ctx context.Context) ([]Entry, error)
	Add(ctx context.Context, entries ...Entry) error
	Reset(ctx context.Context) error

	// PendingRun returns the most recently started run that has not been deleted.
	PendingRun(ctx context.Context) (Run, bool, error)
	SaveRun(ctx context.Context, run Run) error
	SetCursor(ctx context.Context, runID string, next int) error
	DeleteRun(ctx context.Context, runID string) error
	Close() error
}

// Open builds the store named by backend. db is only used by the postgres backend.
func Open(ctx context.Context, backend, path string, db *storage.DB) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "sqlite":
		return OpenSQLite(ctx, path)
	case "postgres":
		if db == nil {
			return nil, util.ConfigError("postgres manifest requires a database connection")
		}
		return NewPostgres(ctx, db.Pool)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, util.ConfigError("unsupported manifest backend %q", backend)
	}
}

func sortedEntries(in []Entry) []Entry {
	sort.Slice(in, func(i, j int) bool { return in[i].Source < in[j].Source })
	return in
}
