package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lexrag/internal/util"
)

type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	runs    map[string]Run
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}, runs: map[string]Run{}}
}

func (m *Memory) Sources(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.entries))
	for s := range m.entries {
		out[s] = struct{}{}
	}
	return out, nil
}

func (m *Memory) Entries(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return sortedEntries(out), nil
}

func (m *Memory) Add(ctx context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.IngestedAt.IsZero() {
			e.IngestedAt = time.Now().UTC()
		}
		m.entries[e.Source] = e
	}
	return nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]Entry{}
	m.runs = map[string]Run{}
	return nil
}

func (m *Memory) PendingRun(ctx context.Context) (Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest Run
		found  bool
	)
	for _, r := range m.runs {
		if !found || r.StartedAt.After(latest.StartedAt) {
			latest, found = r, true
		}
	}
	if found {
		latest.Sources = append([]string(nil), latest.Sources...)
	}
	return latest, found, nil
}

func (m *Memory) SaveRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.UpdatedAt = time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = run.UpdatedAt
	}
	run.Sources = append([]string(nil), run.Sources...)
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) SetCursor(ctx context.Context, runID string, next int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, util.ErrNotFound)
	}
	r.NextBatch = next
	r.UpdatedAt = time.Now().UTC()
	m.runs[runID] = r
	return nil
}

func (m *Memory) DeleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
