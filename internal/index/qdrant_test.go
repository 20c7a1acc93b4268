package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQdrant struct {
	mu       sync.Mutex
	exists   bool
	size     int
	requests []string
	bodies   map[string]map[string]any
	failNext int
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		key := r.Method + " " + r.URL.Path
		f.requests = append(f.requests, key)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies[key] = body
		if f.failNext > 0 {
			f.failNext--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch key {
		case "GET /collections/leyes":
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
				"status": "green",
				"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
			}})
		case "PUT /collections/leyes":
			f.exists = true
			f.size = int(body["vectors"].(map[string]any)["size"].(float64))
			_, _ = w.Write([]byte(`{"result":true}`))
		case "POST /collections/leyes/points/search":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{
				map[string]any{"score": 0.91, "payload": map[string]any{"id": "ley:a:1:x", "source": "data/03_leyes/a.pdf", "page_label": 1}},
			}})
		default:
			_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
		}
	})
}

func TestQdrantLifecycle(t *testing.T) {
	fake := &fakeQdrant{bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	ctx := context.Background()
	q := NewQdrant(srv.URL+"/", "secret", "leyes", srv.Client())

	st, err := q.Describe(ctx)
	require.NoError(t, err)
	require.False(t, st.Exists)

	require.NoError(t, q.Create(ctx, Spec{Name: "leyes", Dimension: 3, Metric: MetricDotProduct}))
	require.Equal(t, "Dot", fake.bodies["PUT /collections/leyes"]["vectors"].(map[string]any)["distance"])
	require.Contains(t, fake.requests, "PUT /collections/leyes/index")

	st, err = q.Describe(ctx)
	require.NoError(t, err)
	require.Equal(t, Status{Exists: true, Ready: true, Dimension: 3}, st)

	require.NoError(t, q.Upsert(ctx, []models.IndexRecord{rec("ley:a:1:x", "data/03_leyes/a.pdf", 1, 0, 0)}))
	points := fake.bodies["PUT /collections/leyes/points"]["points"].([]any)
	point := points[0].(map[string]any)
	require.Equal(t, PointID("ley:a:1:x"), point["id"])
	require.Equal(t, "ley:a:1:x", point["payload"].(map[string]any)["id"])

	matches, err := q.Query(ctx, QueryRequest{Vector: []float32{1, 0, 0}, TopK: 3, Filter: models.ParseSourceFilter([]string{"data/03_leyes/a.pdf"})})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "ley:a:1:x", matches[0].ID)
	require.Equal(t, "1", matches[0].Metadata[models.MetaPageLabel])
	filter := fake.bodies["POST /collections/leyes/points/search"]["filter"].(map[string]any)
	require.Len(t, filter["must"], 1)

	require.NoError(t, q.DeleteSources(ctx, []string{"data/03_leyes/a.pdf"}))
	must := fake.bodies["POST /collections/leyes/points/delete"]["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	require.Equal(t, []any{"data/03_leyes/a.pdf"}, must[0].(map[string]any)["match"].(map[string]any)["any"])

	require.NoError(t, q.DeleteAll(ctx))
	require.Empty(t, fake.bodies["POST /collections/leyes/points/delete"]["filter"].(map[string]any)["must"])
}

func TestQdrantServerErrorsAreTransient(t *testing.T) {
	fake := &fakeQdrant{bodies: map[string]map[string]any{}, failNext: 1, exists: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	q := NewQdrant(srv.URL, "secret", "leyes", nil)

	err := q.Upsert(context.Background(), []models.IndexRecord{rec("a", "s", 1)})
	require.ErrorIs(t, err, util.ErrTransient)
}

func TestPointIDStable(t *testing.T) {
	require.Equal(t, PointID("ley:a:1:x"), PointID("ley:a:1:x"))
	require.NotEqual(t, PointID("ley:a:1:x"), PointID("ley:a:1:y"))
}
