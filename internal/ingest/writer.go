package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lexrag/internal/index"
	"lexrag/internal/models"
	"lexrag/internal/util"

	"go.uber.org/zap"
)

// Cursor is called after batch i is stored, with i+1 as the next batch to write.
type Cursor func(ctx context.Context, next int) error

type WriterOptions struct {
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Wait        index.Waiter
}

// BatchWriter upserts records in fixed-size batches. Transient failures are
// retried with exponential backoff; batches already written are never rolled back.
type BatchWriter struct {
	idx  index.Index
	opts WriterOptions
	log  *zap.Logger
}

func NewBatchWriter(idx index.Index, opts WriterOptions, log *zap.Logger) *BatchWriter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Wait == nil {
		opts.Wait = index.Sleep
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchWriter{idx: idx, opts: opts, log: log}
}

func (w *BatchWriter) BatchSize() int {
	return w.opts.BatchSize
}

// BatchCount is ceil(n / batch size).
func (w *BatchWriter) BatchCount(n int) int {
	return (n + w.opts.BatchSize - 1) / w.opts.BatchSize
}

// Batch returns the i-th slice of records.
func (w *BatchWriter) Batch(records []models.IndexRecord, i int) []models.IndexRecord {
	start := i * w.opts.BatchSize
	if start >= len(records) || i < 0 {
		return nil
	}
	return records[start:min(start+w.opts.BatchSize, len(records))]
}

// Write stores batches from..end and advances the cursor after each one. It stops
// at the first batch that still fails after retries, leaving the cursor there.
func (w *BatchWriter) Write(ctx context.Context, records []models.IndexRecord, from int, advance Cursor) (int, error) {
	total := w.BatchCount(len(records))
	written := 0
	for i := max(from, 0); i < total; i++ {
		if err := w.WriteBatch(ctx, i, total, w.Batch(records, i)); err != nil {
			return written, err
		}
		written++
		if advance != nil {
			if err := advance(ctx, i+1); err != nil {
				return written, fmt.Errorf("advance cursor to batch %d: %w", i+1, err)
			}
		}
	}
	return written, nil
}

// WriteBatch upserts one batch, retrying transient errors up to MaxAttempts times.
func (w *BatchWriter) WriteBatch(ctx context.Context, i, total int, batch []models.IndexRecord) error {
	delay := w.opts.BaseDelay
	var err error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		err = w.idx.Upsert(ctx, batch)
		if err == nil {
			w.log.Info("batch upserted", zap.Int("batch", i+1), zap.Int("batches", total), zap.Int("records", len(batch)))
			return nil
		}
		if !errors.Is(err, util.ErrTransient) || attempt == w.opts.MaxAttempts {
			break
		}
		w.log.Warn("batch upsert failed; retrying",
			zap.Int("batch", i+1),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if werr := w.opts.Wait(ctx, delay); werr != nil {
			return fmt.Errorf("upsert batch %d/%d: %w", i+1, total, werr)
		}
		delay = min(delay*2, w.opts.MaxDelay)
	}
	return &BatchError{Index: i, Total: total, Err: err}
}

// BatchError reports the batch the writer stopped at.
type BatchError struct {
	Index int
	Total int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert batch %d/%d: %v", e.Index+1, e.Total, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
