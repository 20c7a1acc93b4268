package index

import (
	"context"
	"fmt"
	"time"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"go.uber.org/zap"
)

type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotproduct"
)

// Spec describes the index to create when it is absent.
type Spec struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Cloud     string `json:"cloud"`
	Region    string `json:"region"`
}

type Status struct {
	Exists    bool
	Ready     bool
	Dimension int
}

type QueryRequest struct {
	Vector []float32
	TopK   int
	Filter models.SourceFilter
}

// Index is the vector index contract used by ingestion and retrieval.
type Index interface {
	Describe(ctx context.Context) (Status, error)
	Create(ctx context.Context, spec Spec) error
	Upsert(ctx context.Context, records []models.IndexRecord) error
	Query(ctx context.Context, req QueryRequest) ([]models.Match, error)
	DeleteAll(ctx context.Context) error
	// DeleteSources removes every record whose source is in sources.
	DeleteSources(ctx context.Context, sources []string) error
}

// Waiter blocks for d or until ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type EnsureOptions struct {
	Settle  time.Duration
	Poll    time.Duration
	Timeout time.Duration
	Wait    Waiter
}

// Ensure creates the index when it is absent, polls until it reports ready and, after a
// fresh create, waits the settle window before returning.
func Ensure(ctx context.Context, idx Index, spec Spec, opts EnsureOptions, log *zap.Logger) (bool, error) {
	if opts.Wait == nil {
		opts.Wait = Sleep
	}
	if opts.Poll <= 0 {
		opts.Poll = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	st, err := idx.Describe(ctx)
	if err != nil {
		return false, fmt.Errorf("describe index %s: %w", spec.Name, util.Transient(err))
	}
	created := false
	if !st.Exists {
		log.Info("creating index",
			zap.String("name", spec.Name),
			zap.Int("dimension", spec.Dimension),
			zap.String("metric", string(spec.Metric)),
			zap.String("cloud", spec.Cloud),
			zap.String("region", spec.Region))
		if err := idx.Create(ctx, spec); err != nil {
			return false, fmt.Errorf("create index %s: %w", spec.Name, err)
		}
		created = true
	} else if st.Dimension > 0 && st.Dimension != spec.Dimension {
		return false, util.ConfigError("index %s has dimension %d, configured %d", spec.Name, st.Dimension, spec.Dimension)
	}

	var waited time.Duration
	for !st.Ready {
		st, err = idx.Describe(ctx)
		if err != nil {
			return created, fmt.Errorf("poll index %s: %w", spec.Name, util.Transient(err))
		}
		if st.Ready {
			break
		}
		if waited >= opts.Timeout {
			return created, util.Transient(fmt.Errorf("index %s not ready after %s", spec.Name, opts.Timeout))
		}
		if err := opts.Wait(ctx, opts.Poll); err != nil {
			return created, err
		}
		waited += opts.Poll
	}
	if created && opts.Settle > 0 {
		log.Info("waiting for new index to settle", zap.String("name", spec.Name), zap.Duration("settle", opts.Settle))
		if err := opts.Wait(ctx, opts.Settle); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Clear removes every record and waits the settle window so later writes see an empty index.
func Clear(ctx context.Context, idx Index, settle time.Duration, wait Waiter, log *zap.Logger) error {
	if wait == nil {
		wait = Sleep
	}
	if err := idx.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete all records: %w", err)
	}
	log.Info("index cleared", zap.Duration("settle", settle))
	return wait(ctx, settle)
}
