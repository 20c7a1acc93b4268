package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lexrag/internal/chain"
	"lexrag/internal/loader"
	"lexrag/internal/models"
	"lexrag/internal/session"
	"lexrag/internal/util"
	"lexrag/internal/workflows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubChain struct {
	lastFilter models.SourceFilter
}

func (c *stubChain) Run(_ context.Context, q string, _ []models.Turn, f models.SourceFilter) (chain.Answered, error) {
	c.lastFilter = f
	if strings.TrimSpace(q) == "" {
		return chain.Answered{}, util.UserInputError("question is empty")
	}
	if q == "down" {
		return chain.Answered{}, util.Transient(fmt.Errorf("provider unavailable"))
	}
	return chain.Answered{
		Question:   q,
		Standalone: q,
		Answer:     "Según la ley [1]",
		Citations:  []models.Citation{{ID: "c1", Source: "03_leyes/a.pdf", Category: models.CategoryLaw, PageLabel: "1"}},
	}, nil
}

type stubCatalog []models.CatalogEntry

func (c stubCatalog) Catalog(context.Context) ([]models.CatalogEntry, error) {
	return c, nil
}

type stubIngest struct {
	running bool
	resets  []bool
}

func (s *stubIngest) StartIngest(_ context.Context, reset bool) (IngestStarted, error) {
	if s.running {
		return IngestStarted{}, ErrIngestRunning
	}
	s.running = true
	s.resets = append(s.resets, reset)
	return IngestStarted{WorkflowID: workflows.IngestWorkflowID, RunID: "r1"}, nil
}

func (s *stubIngest) Progress(context.Context) (workflows.IngestProgress, error) {
	return workflows.IngestProgress{Status: "running", CurrentStep: "upsert_batches", Batches: 3, BatchesWritten: 1}, nil
}

type fixture struct {
	srv    *httptest.Server
	chain  *stubChain
	ingest *stubIngest
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "03_leyes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "03_leyes", "a.pdf"), []byte("%PDF-1.4 test"), 0o644))

	c := &stubChain{}
	ing := &stubIngest{}
	log := zaptest.NewLogger(t)
	catalog := stubCatalog{
		{Source: "03_leyes/a.pdf", Filename: "a.pdf", Folder: "03_leyes", Category: models.CategoryLaw},
		{Source: "04_codigos/b.pdf", Filename: "b.pdf", Folder: "04_codigos", Category: models.CategoryCode},
	}
	s := NewServer(session.NewManager(c, 3, log), catalog, loader.NewFileStore(root), ing, log)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, chain: c, ingest: ing, root: root}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
}

func TestDocumentsGroupsByCategory(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/documents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docs, _ := body["documents"].([]any)
	assert.Len(t, docs, 2)
	byCat, _ := body["by_category"].(map[string]any)
	assert.Contains(t, byCat, "ley")
	assert.Contains(t, byCat, "codigo")
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/sessions", `{"sources":["todos"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, body["all_sources"])

	resp, body = f.do(t, http.MethodPut, "/sessions/"+id+"/filter", `{"sources":["03_leyes/a.pdf"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["all_sources"])

	resp, body = f.do(t, http.MethodPost, "/sessions/"+id+"/ask", `{"question":"¿Qué dice la ley?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Según la ley [1]", body["answer"])
	assert.Equal(t, id, body["session_id"])
	cits, _ := body["citations"].([]any)
	assert.Len(t, cits, 1)
	assert.Equal(t, []string{"03_leyes/a.pdf"}, f.chain.lastFilter.Sources)

	resp, body = f.do(t, http.MethodGet, "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["turns"])

	resp, _ = f.do(t, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/sessions/"+id+"/ask", `{"question":"otra"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "LX-API-4004", errorCode(body))
}

func TestAskErrorsMapToStatus(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodPost, "/sessions", "")
	id, _ := body["id"].(string)

	resp, body := f.do(t, http.MethodPost, "/sessions/"+id+"/ask", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "LX-API-4001", errorCode(body))

	resp, body = f.do(t, http.MethodPost, "/sessions/"+id+"/ask", `{"question":"down"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "LX-API-5020", errorCode(body))

	resp, body = f.do(t, http.MethodPost, "/sessions/"+id+"/ask", `{bad`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Malformed JSON request body.", body["error"].(map[string]any)["message"])
}

func TestFileDownload(t *testing.T) {
	f := newFixture(t)
	source := filepath.ToSlash(filepath.Join(f.root, "03_leyes", "a.pdf"))

	resp, err := http.Get(f.srv.URL + "/files?source=" + source + "&name=Ley%20A.pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Ley A.pdf")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(raw))

	r2, body := f.do(t, http.MethodGet, "/files?source=/etc/passwd.pdf", "")
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)
	assert.Equal(t, "The requested source cannot be served.", body["error"].(map[string]any)["message"])

	r3, _ := f.do(t, http.MethodGet, "/files?source="+filepath.ToSlash(filepath.Join(f.root, "03_leyes", "missing.pdf")), "")
	assert.Equal(t, http.StatusNotFound, r3.StatusCode)
}

func TestIngestStartAndConflict(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/ingest", `{"reset":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, workflows.IngestWorkflowID, body["workflow_id"])
	assert.Equal(t, []bool{true}, f.ingest.resets)

	resp, body = f.do(t, http.MethodPost, "/ingest", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "LX-API-4009", errorCode(body))

	resp, body = f.do(t, http.MethodGet, "/ingest", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upsert_batches", body["current_step"])
}

func TestIngestWithoutTemporal(t *testing.T) {
	log := zaptest.NewLogger(t)
	s := NewServer(session.NewManager(&stubChain{}, 1, log), stubCatalog{}, loader.NewFileStore(t.TempDir()), nil, log)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "LX-API-5031")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPatch, "/documents", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "LX-API-4005", errorCode(body))
}
