package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/google/uuid"
)

// Qdrant is a REST client for one Qdrant collection.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

func NewQdrant(baseURL, apiKey, collection string, client *http.Client) *Qdrant {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     client,
	}
}

// PointID maps a record id onto the UUID form Qdrant requires. The mapping is stable.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lexrag:"+id)).String()
}

func (q *Qdrant) Describe(ctx context.Context) (Status, error) {
	var resp struct {
		Result struct {
			Status string `json:"status"`
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	code, err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, &resp)
	if code == http.StatusNotFound {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	ready := resp.Result.Status == "green" || resp.Result.Status == "yellow"
	return Status{Exists: true, Ready: ready, Dimension: resp.Result.Config.Params.Vectors.Size}, nil
}

func (q *Qdrant) Create(ctx context.Context, spec Spec) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": qdrantDistance(spec.Metric),
		},
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath(""), body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": models.MetaSource, "field_schema": "keyword"}
	_, err := q.do(ctx, http.MethodPut, q.collectionPath("/index?wait=true"), index, nil)
	return err
}

func (q *Qdrant) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(records))
	for _, r := range records {
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[models.MetaID] = r.ID
		points = append(points, map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Values,
			"payload": payload,
		})
	}
	_, err := q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func (q *Qdrant) Query(ctx context.Context, req QueryRequest) ([]models.Match, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        topK,
		"with_payload": true,
	}
	if !req.Filter.IsAll() {
		body["filter"] = map[string]any{
			"must": []any{
				map[string]any{"key": models.MetaSource, "match": map[string]any{"any": req.Filter.Sources}},
			},
		}
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		meta := make(models.Metadata, len(r.Payload))
		for k, v := range r.Payload {
			if s, ok := v.(string); ok {
				meta[k] = s
				continue
			}
			meta[k] = fmt.Sprint(v)
		}
		out = append(out, models.Match{ID: meta[models.MetaID], Score: r.Score, Metadata: meta})
	}
	return out, nil
}

func (q *Qdrant) DeleteAll(ctx context.Context) error {
	body := map[string]any{"filter": map[string]any{"must": []any{}}}
	code, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil)
	if code == http.StatusNotFound {
		return nil
	}
	return err
}

func (q *Qdrant) DeleteSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	body := map[string]any{"filter": map[string]any{"must": []any{
		map[string]any{"key": models.MetaSource, "match": map[string]any{"any": sources}},
	}}}
	code, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil)
	if code == http.StatusNotFound {
		return nil
	}
	return err
}

func (q *Qdrant) collectionPath(suffix string) string {
	return q.baseURL + "/collections/" + url.PathEscape(q.collection) + suffix
}

func (q *Qdrant) do(ctx context.Context, method, endpoint string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode qdrant request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return 0, fmt.Errorf("build qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, util.Transient(fmt.Errorf("qdrant %s %s: %w", method, endpoint, err))
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("qdrant %s %s failed %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			err = util.Transient(err)
		}
		return resp.StatusCode, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func qdrantDistance(m Metric) string {
	switch m {
	case MetricEuclidean:
		return "Euclid"
	case MetricDotProduct:
		return "Dot"
	default:
		return "Cosine"
	}
}
