package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"lexrag/internal/models"
	"lexrag/internal/util"
)

// Memory is an in-process index used for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	spec    *Spec
	records map[string]models.IndexRecord
	order   []string
}

func NewMemory() *Memory {
	return &Memory{records: map[string]models.IndexRecord{}}
}

func (m *Memory) Describe(context.Context) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.spec == nil {
		return Status{}, nil
	}
	return Status{Exists: true, Ready: true, Dimension: m.spec.Dimension}, nil
}

func (m *Memory) Create(_ context.Context, spec Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spec == nil {
		s := spec
		m.spec = &s
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, records []models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.spec != nil && len(r.Values) != m.spec.Dimension {
			return util.DataError("record %s has %d values, index expects %d", r.ID, len(r.Values), m.spec.Dimension)
		}
		if _, ok := m.records[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		m.records[r.ID] = models.IndexRecord{
			ID:       r.ID,
			Values:   append([]float32(nil), r.Values...),
			Metadata: r.Metadata.Clone(),
		}
	}
	return nil
}

func (m *Memory) Query(_ context.Context, req QueryRequest) ([]models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metric := MetricCosine
	if m.spec != nil && m.spec.Metric != "" {
		metric = m.spec.Metric
	}
	out := make([]models.Match, 0, len(m.records))
	for _, id := range m.order {
		r := m.records[id]
		if !req.Filter.Allows(r.Source()) {
			continue
		}
		out = append(out, models.Match{ID: r.ID, Score: score(metric, req.Vector, r.Values), Metadata: r.Metadata.Clone()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if req.TopK > 0 && len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

func (m *Memory) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]models.IndexRecord{}
	m.order = nil
	return nil
}

func (m *Memory) DeleteSources(_ context.Context, sources []string) error {
	drop := models.SourceFilter{Sources: sources}
	if drop.IsAll() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		if drop.Allows(m.records[id].Source()) {
			delete(m.records, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

// Len reports the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func score(metric Metric, a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb, dist float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		dist += (x - y) * (x - y)
	}
	switch metric {
	case MetricDotProduct:
		return dot
	case MetricEuclidean:
		return 1 / (1 + math.Sqrt(dist))
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
