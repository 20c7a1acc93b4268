package ingest

import (
	"context"
	"sync"

	"lexrag/internal/index"
	"lexrag/internal/models"
)

// recordingIndex is an in-memory index that remembers the size of every upsert.
type recordingIndex struct {
	*index.Memory
	mu    sync.Mutex
	sizes []int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{Memory: index.NewMemory()}
}

func (r *recordingIndex) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if err := r.Memory.Upsert(ctx, records); err != nil {
		return err
	}
	r.mu.Lock()
	r.sizes = append(r.sizes, len(records))
	r.mu.Unlock()
	return nil
}

func (r *recordingIndex) batchSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.sizes...)
}

func (r *recordingIndex) len() int {
	return r.Memory.Len()
}
