package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lexrag/internal/manifest"
	"lexrag/internal/models"
	"lexrag/internal/util"
)

// Stage is the on-disk state of one run: DataOut/runs/{run_id}/.
type Stage struct {
	dir string
}

func NewStage(dataOut, runID string) *Stage {
	return &Stage{dir: filepath.Join(dataOut, "runs", runID)}
}

func (s *Stage) Dir() string {
	return s.dir
}

func (s *Stage) recordsDir() string  { return filepath.Join(s.dir, "records") }
func (s *Stage) sourcesPath() string { return filepath.Join(s.dir, "sources.jsonl") }
func (s *Stage) ReportPath() string  { return filepath.Join(s.dir, "report.json") }

func (s *Stage) recordsPath(source string) string {
	return filepath.Join(s.recordsDir(), util.HashToken(16, source)+".jsonl")
}

// Append stages one source's records and then lists it in sources.jsonl. A source
// that is already listed is left alone, so repeating an Append is harmless.
func (s *Stage) Append(entry manifest.Entry, records []models.IndexRecord) error {
	existing, err := s.Sources()
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Source == entry.Source {
			return nil
		}
	}
	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, r)
	}
	if err := util.WriteJSONLinesAtomic(s.recordsPath(entry.Source), rows); err != nil {
		return fmt.Errorf("stage records for %s: %w", entry.Source, err)
	}
	if err := util.AppendJSONLines(s.sourcesPath(), []any{entry}); err != nil {
		return fmt.Errorf("stage source %s: %w", entry.Source, err)
	}
	return nil
}

// Records returns the staged records of every listed source, in staging order.
func (s *Stage) Records() ([]models.IndexRecord, error) {
	entries, err := s.Sources()
	if err != nil {
		return nil, err
	}
	var out []models.IndexRecord
	for _, e := range entries {
		recs, err := util.ReadJSONLines[models.IndexRecord](s.recordsPath(e.Source))
		if err != nil {
			return nil, fmt.Errorf("staged records for %s: %w", e.Source, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *Stage) Sources() ([]manifest.Entry, error) {
	entries, err := util.ReadJSONLines[manifest.Entry](s.sourcesPath())
	if errors.Is(err, util.ErrNotFound) {
		return nil, nil
	}
	return entries, err
}

func (s *Stage) WriteReport(r Report) error {
	return util.WriteJSONAtomic(s.ReportPath(), r)
}

// Clear drops the staged records and keeps the report.
func (s *Stage) Clear() error {
	if err := os.Remove(s.sourcesPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear stage: %w", err)
	}
	if err := os.RemoveAll(s.recordsDir()); err != nil {
		return fmt.Errorf("clear stage: %w", err)
	}
	return nil
}

// Discard removes the whole run directory.
func (s *Stage) Discard() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("discard stage: %w", err)
	}
	return nil
}
