package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"lexrag/internal/chain"
	"lexrag/internal/models"
	"lexrag/internal/session"
	"lexrag/internal/util"
	"lexrag/internal/workflows"

	"go.uber.org/zap"
)

// Catalog lists the documents a session can filter on.
type Catalog interface {
	Catalog(ctx context.Context) ([]models.CatalogEntry, error)
}

// Files opens a stored source for download; loader.FileStore satisfies it.
type Files interface {
	Open(source string) (*os.File, os.FileInfo, error)
}

// IngestStarter starts an ingestion run in the background.
type IngestStarter interface {
	StartIngest(ctx context.Context, reset bool) (IngestStarted, error)
}

// ProgressReader is implemented by starters that can report on the running ingestion.
type ProgressReader interface {
	Progress(ctx context.Context) (workflows.IngestProgress, error)
}

type IngestStarted struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// ErrIngestRunning is returned by an IngestStarter when a run is already in flight.
var ErrIngestRunning = errors.New("ingestion already running")

type Server struct {
	sessions *session.Manager
	catalog  Catalog
	files    Files
	ingest   IngestStarter
	log      *zap.Logger
}

func NewServer(sessions *session.Manager, catalog Catalog, files Files, ingest IngestStarter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{sessions: sessions, catalog: catalog, files: files, ingest: ingest, log: log}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/files", s.handleFile)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionScoped)
	mux.HandleFunc("/ingest", s.handleIngest)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docs, err := s.catalog.Catalog(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	byCategory := map[models.Category][]models.CatalogEntry{}
	for _, d := range docs {
		byCategory[d.Category] = append(byCategory[d.Category], d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "by_category": byCategory})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	source := r.URL.Query().Get("source")
	f, info, err := s.files.Open(source)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer f.Close()
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = path.Base(source)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type createSessionRequest struct {
	Sources []string `json:"sources"`
}

type sessionResponse struct {
	ID      string              `json:"id"`
	Filter  models.SourceFilter `json:"filter"`
	AllDocs bool                `json:"all_sources"`
	Turns   int                 `json:"turns"`
}

func toSessionResponse(sess *session.Session) sessionResponse {
	f := sess.Filter()
	return sessionResponse{ID: sess.ID, Filter: f, AllDocs: f.IsAll(), Turns: len(sess.History())}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	sess := s.sessions.Create(models.ParseSourceFilter(req.Sources))
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

type filterRequest struct {
	Sources []string `json:"sources"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	chain.Answered
}

func (s *Server) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			sess, err := s.sessions.Get(id)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toSessionResponse(sess))
		case http.MethodDelete:
			if err := s.sessions.End(id); err != nil {
				s.fail(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	if len(parts) == 2 && parts[1] == "filter" {
		if r.Method != http.MethodPut {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req filterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if err := s.sessions.SetFilter(id, models.ParseSourceFilter(req.Sources)); err != nil {
			s.fail(w, err)
			return
		}
		sess, err := s.sessions.Get(id)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
		return
	}

	if len(parts) == 2 && parts[1] == "ask" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		out, err := s.sessions.Ask(r.Context(), id, req.Question)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, askResponse{SessionID: id, Answered: out})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

type ingestRequest struct {
	Reset bool `json:"reset"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		pr, ok := s.ingest.(ProgressReader)
		if !ok {
			writeErr(w, http.StatusNotFound, fmt.Errorf("progress is not available"))
			return
		}
		progress, err := pr.Progress(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, progress)
	case http.MethodPost:
		var req ingestRequest
		if err := decodeOptional(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		started, err := s.ingest.StartIngest(r.Context(), req.Reset)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.log.Info("ingestion started", zap.String("workflow_id", started.WorkflowID), zap.Bool("reset", req.Reset))
		writeJSON(w, http.StatusAccepted, started)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

// fail maps the error taxonomy onto an HTTP status.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeErr(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrUserInput):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIngestRunning):
		return http.StatusConflict
	case errors.Is(err, util.ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, util.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid json: %w", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "LX-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "LX-API-5020", Message: "Upstream provider or index unavailable. Retry shortly."}
	case status == http.StatusServiceUnavailable:
		switch {
		case strings.Contains(raw, "ingestion is not configured"):
			return apiError{Code: "LX-API-5031", Message: "Ingestion requires a Temporal connection."}
		default:
			return apiError{Code: "LX-API-5030", Message: "Service is misconfigured. Check provider keys and index settings."}
		}
	case status >= 500:
		switch {
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "LX-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "LX-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		code = "LX-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "LX-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "LX-API-4009"
		msg = "An ingestion run is already in progress."
	case status == http.StatusMethodNotAllowed:
		code = "LX-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "question is empty"):
			msg = "Please enter a question."
		case strings.Contains(raw, "source is required"):
			msg = "A source path is required."
		case strings.Contains(raw, "outside the data root"), strings.Contains(raw, "only pdf sources"):
			msg = "The requested source cannot be served."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
