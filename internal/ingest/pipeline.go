// Package ingest runs the ingestion pipeline: discover, dedup, chunk, build,
// embed, stage and upsert in batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lexrag/internal/chunker"
	"lexrag/internal/dedup"
	"lexrag/internal/index"
	"lexrag/internal/manifest"
	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source discovers and loads documents; *loader.Loader satisfies it.
type Source interface {
	Discover(ctx context.Context) ([]models.SourceFile, error)
	Load(ctx context.Context, sf models.SourceFile) (models.Document, error)
}

type Deps struct {
	Source   Source
	Dedup    *dedup.Filter
	Chunker  *chunker.Chunker
	Builder  *Builder
	Embedder chunker.Embedder
	Index    index.Index
	Writer   *BatchWriter
	Manifest manifest.Store
}

type Options struct {
	Spec        index.Spec
	Ensure      index.EnsureOptions
	ClearSettle time.Duration
	DataOut     string
}

type Pipeline struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{deps: deps, opts: opts, log: log}
}

type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Report summarises one Run and is written to runs/{run_id}/report.json.
type Report struct {
	RunID          string          `json:"run_id,omitempty"`
	Reset          bool            `json:"reset"`
	Resumed        bool            `json:"resumed"`
	Discovered     int             `json:"discovered"`
	Skipped        []string        `json:"skipped"`
	Failed         []SourceFailure `json:"failed"`
	Ingested       []string        `json:"ingested"`
	Chunks         int             `json:"chunks"`
	Batches        int             `json:"batches"`
	BatchesWritten int             `json:"batches_written"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	DurationMS     int64           `json:"duration_ms"`
}

// Run executes a whole ingestion in-process. A pending run left by an earlier
// failure is finished first; new sources are discovered afterwards either way.
func (p *Pipeline) Run(ctx context.Context, reset bool) (Report, error) {
	rep := Report{Reset: reset, StartedAt: time.Now().UTC(), Skipped: []string{}, Failed: []SourceFailure{}, Ingested: []string{}}
	if reset {
		if err := p.Reset(ctx); err != nil {
			return rep, err
		}
	}
	if _, err := p.EnsureIndex(ctx); err != nil {
		return rep, err
	}

	pending, resumed, err := p.Resume(ctx)
	if err != nil {
		return rep, err
	}
	var prior Report
	if resumed {
		rep.Resumed = true
		if prior, err = p.complete(ctx, pending, rep); err != nil {
			return prior, err
		}
	}

	fresh, skipped, err := p.Discover(ctx)
	if err != nil {
		return MergeReports(prior, rep), err
	}
	rep.Discovered = len(fresh) + len(skipped)
	for _, sf := range skipped {
		rep.Skipped = append(rep.Skipped, sf.Source)
	}
	if len(fresh) == 0 {
		p.log.Info("no new documents to ingest", zap.Int("existing", len(skipped)))
		return p.finish(MergeReports(prior, rep)), nil
	}
	run, err := p.StartRun(ctx, fresh)
	if err != nil {
		return MergeReports(prior, rep), err
	}
	for _, sf := range fresh {
		staged, err := p.StageDocument(ctx, run.ID, sf)
		if err != nil {
			return MergeReports(prior, rep), err
		}
		if staged.Skipped {
			rep.Failed = append(rep.Failed, SourceFailure{Source: sf.Source, Error: staged.Reason})
		}
	}
	if run, err = p.SealRun(ctx, run.ID); err != nil {
		return MergeReports(prior, rep), err
	}
	done, err := p.complete(ctx, run, rep)
	return MergeReports(prior, done), err
}

// complete writes the remaining batches of a sealed run and commits it.
func (p *Pipeline) complete(ctx context.Context, run manifest.Run, rep Report) (Report, error) {
	rep.RunID = run.ID
	rep.Batches = run.Batches()
	written, err := p.WriteRun(ctx, run)
	rep.BatchesWritten = written
	if err != nil {
		return rep, err
	}
	return p.CommitRun(ctx, run.ID, p.finish(rep))
}

// MergeReports folds the report of a resumed run into the report of the run
// that followed it in the same invocation.
func MergeReports(prior, cur Report) Report {
	if prior.RunID == "" {
		return cur
	}
	out := cur
	if out.RunID == "" {
		out.RunID = prior.RunID
	}
	out.Resumed = true
	out.Ingested = append(append(make([]string, 0, len(prior.Ingested)+len(cur.Ingested)), prior.Ingested...), cur.Ingested...)
	out.Chunks += prior.Chunks
	out.Batches += prior.Batches
	out.BatchesWritten += prior.BatchesWritten
	return out
}

func (p *Pipeline) finish(rep Report) Report {
	rep.FinishedAt = time.Now().UTC()
	rep.DurationMS = rep.FinishedAt.Sub(rep.StartedAt).Milliseconds()
	return rep
}

// Reset clears the index, the manifest and every staged run.
func (p *Pipeline) Reset(ctx context.Context) error {
	status, err := p.deps.Index.Describe(ctx)
	if err != nil {
		return fmt.Errorf("describe index before reset: %w", err)
	}
	if status.Exists {
		if err := index.Clear(ctx, p.deps.Index, p.opts.ClearSettle, p.opts.Ensure.Wait, p.log); err != nil {
			return err
		}
	}
	if err := p.deps.Manifest.Reset(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(p.opts.DataOut, "runs")); err != nil {
		return fmt.Errorf("remove staged runs: %w", err)
	}
	p.log.Info("ingestion state reset", zap.String("index", p.opts.Spec.Name))
	return nil
}

func (p *Pipeline) EnsureIndex(ctx context.Context) (bool, error) {
	return index.Ensure(ctx, p.deps.Index, p.opts.Spec, p.opts.Ensure, p.log)
}

// Resume returns the pending run when it got as far as writing. A run that
// stopped while staging is discarded so its sources are picked up again.
func (p *Pipeline) Resume(ctx context.Context) (manifest.Run, bool, error) {
	run, ok, err := p.deps.Manifest.PendingRun(ctx)
	if err != nil || !ok {
		return manifest.Run{}, false, err
	}
	if run.Status == manifest.RunStaging {
		p.log.Warn("discarding incomplete staged run", zap.String("run_id", run.ID))
		return manifest.Run{}, false, p.discardRun(ctx, run)
	}
	p.log.Info("resuming ingestion run",
		zap.String("run_id", run.ID),
		zap.Int("next_batch", run.NextBatch),
		zap.Int("batches", run.Batches()))
	return run, true, nil
}

// Discover lists candidate sources and drops the ones already ingested.
func (p *Pipeline) Discover(ctx context.Context) (fresh, skipped []models.SourceFile, err error) {
	files, err := p.deps.Source.Discover(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("discover sources: %w", err)
	}
	fresh, skipped = p.deps.Dedup.Apply(ctx, files)
	return fresh, skipped, nil
}

func (p *Pipeline) StartRun(ctx context.Context, files []models.SourceFile) (manifest.Run, error) {
	sources := make([]string, 0, len(files))
	for _, sf := range files {
		sources = append(sources, sf.Source)
	}
	run := manifest.Run{
		ID:        time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8],
		Status:    manifest.RunStaging,
		Sources:   sources,
		BatchSize: p.deps.Writer.BatchSize(),
		StartedAt: time.Now().UTC(),
	}
	if err := p.deps.Manifest.SaveRun(ctx, run); err != nil {
		return manifest.Run{}, err
	}
	p.log.Info("ingestion run started", zap.String("run_id", run.ID), zap.Int("sources", len(sources)))
	return run, nil
}

type StagedSource struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

// StageDocument loads, chunks, builds and embeds one source and appends the
// resulting records to the run stage. Unreadable documents are skipped.
func (p *Pipeline) StageDocument(ctx context.Context, runID string, sf models.SourceFile) (StagedSource, error) {
	log := p.log.With(zap.String("run_id", runID), zap.String("source", sf.Source))
	doc, err := p.deps.Source.Load(ctx, sf)
	if err != nil {
		if ctx.Err() != nil {
			return StagedSource{}, ctx.Err()
		}
		log.Warn("skipping unreadable document", zap.Error(err))
		return StagedSource{Source: sf.Source, Skipped: true, Reason: err.Error()}, nil
	}
	raw, err := p.deps.Chunker.Split(ctx, doc, BaseMetadata(sf))
	if err != nil {
		return StagedSource{}, err
	}
	if len(raw) == 0 {
		log.Warn("document produced no chunks")
		return StagedSource{Source: sf.Source, Skipped: true, Reason: util.ErrNoExtractableText.Error()}, nil
	}
	built := p.deps.Builder.Build(raw)
	texts := make([]string, len(built))
	for i, c := range built {
		texts[i] = c.Text
	}
	vectors, err := p.deps.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return StagedSource{}, fmt.Errorf("embed %s: %w", sf.Source, err)
	}
	if len(vectors) != len(built) {
		return StagedSource{}, util.DataError("embedded %d of %d chunks for %s", len(vectors), len(built), sf.Source)
	}
	for i := range built {
		built[i].Vector = vectors[i]
	}

	entry := manifest.Entry{Source: sf.Source, Category: sf.Category, Chunks: len(built), RunID: runID}
	if sum, err := util.FileSHA256(sf.Path); err != nil {
		log.Warn("checksum failed", zap.Error(err))
	} else {
		entry.Checksum = sum
	}
	if err := NewStage(p.opts.DataOut, runID).Append(entry, Records(built)); err != nil {
		return StagedSource{}, err
	}
	log.Info("document staged", zap.Int("pages", len(doc.Pages)), zap.Int("chunks", len(built)))
	return StagedSource{Source: sf.Source, Chunks: len(built)}, nil
}

// SealRun fixes the record count and moves the run to writing.
func (p *Pipeline) SealRun(ctx context.Context, runID string) (manifest.Run, error) {
	run, err := p.pendingRun(ctx, runID)
	if err != nil {
		return manifest.Run{}, err
	}
	recs, err := NewStage(p.opts.DataOut, runID).Records()
	if err != nil {
		return manifest.Run{}, err
	}
	run.Records = len(recs)
	run.NextBatch = 0
	run.Status = manifest.RunWriting
	if err := p.deps.Manifest.SaveRun(ctx, run); err != nil {
		return manifest.Run{}, err
	}
	return run, nil
}

// WriteRun upserts the staged batches from the run cursor onwards.
func (p *Pipeline) WriteRun(ctx context.Context, run manifest.Run) (int, error) {
	recs, err := NewStage(p.opts.DataOut, run.ID).Records()
	if err != nil {
		return 0, err
	}
	if len(recs) != run.Records {
		err := util.DataError("run %s staged %d records, expected %d", run.ID, len(recs), run.Records)
		p.markFailed(ctx, run.ID, err)
		return 0, err
	}
	written, err := p.deps.Writer.Write(ctx, recs, run.NextBatch, func(ctx context.Context, next int) error {
		return p.deps.Manifest.SetCursor(ctx, run.ID, next)
	})
	if err != nil {
		p.markFailed(ctx, run.ID, err)
		return written, err
	}
	return written, nil
}

// UpsertBatch writes a single staged batch and advances the cursor past it.
func (p *Pipeline) UpsertBatch(ctx context.Context, runID string, i int) error {
	run, err := p.pendingRun(ctx, runID)
	if err != nil {
		return err
	}
	if i < run.NextBatch {
		p.log.Info("batch already written", zap.String("run_id", runID), zap.Int("batch", i+1))
		return nil
	}
	recs, err := NewStage(p.opts.DataOut, runID).Records()
	if err != nil {
		return err
	}
	batch := p.deps.Writer.Batch(recs, i)
	if batch == nil {
		return util.DataError("run %s has no batch %d", runID, i)
	}
	if err := p.deps.Writer.WriteBatch(ctx, i, run.Batches(), batch); err != nil {
		p.markFailed(ctx, runID, err)
		return err
	}
	return p.deps.Manifest.SetCursor(ctx, runID, i+1)
}

// CommitRun records the run's sources in the manifest, writes the report and
// drops the staged records.
func (p *Pipeline) CommitRun(ctx context.Context, runID string, rep Report) (Report, error) {
	run, err := p.pendingRun(ctx, runID)
	if err != nil {
		return rep, err
	}
	if !run.Done() {
		return rep, fmt.Errorf("commit run %s: %d of %d batches written", runID, run.NextBatch, run.Batches())
	}
	stage := NewStage(p.opts.DataOut, runID)
	entries, err := stage.Sources()
	if err != nil {
		return rep, err
	}
	if err := p.deps.Manifest.Add(ctx, entries...); err != nil {
		return rep, err
	}
	rep.RunID = runID
	rep.Batches = run.Batches()
	rep.Ingested = make([]string, 0, len(entries))
	rep.Chunks = 0
	for _, e := range entries {
		rep.Ingested = append(rep.Ingested, e.Source)
		rep.Chunks += e.Chunks
	}
	if err := stage.WriteReport(rep); err != nil {
		return rep, err
	}
	if err := stage.Clear(); err != nil {
		return rep, err
	}
	if err := p.deps.Manifest.DeleteRun(ctx, runID); err != nil {
		return rep, err
	}
	p.log.Info("ingestion run committed",
		zap.String("run_id", runID),
		zap.Int("sources", len(entries)),
		zap.Int("chunks", rep.Chunks),
		zap.Int("batches", rep.Batches))
	return rep, nil
}

func (p *Pipeline) pendingRun(ctx context.Context, runID string) (manifest.Run, error) {
	run, ok, err := p.deps.Manifest.PendingRun(ctx)
	if err != nil {
		return manifest.Run{}, err
	}
	if !ok || run.ID != runID {
		return manifest.Run{}, fmt.Errorf("run %s: %w", runID, util.ErrNotFound)
	}
	return run, nil
}

// markFailed records a write failure on the run. A failure that retrying cannot
// fix discards the run instead, so the next ingestion stages its sources again.
func (p *Pipeline) markFailed(ctx context.Context, runID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	run, err := p.pendingRun(ctx, runID)
	if err != nil {
		p.log.Error("load run to mark failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	if !IsRetryable(cause) {
		p.log.Error("discarding run after unrecoverable write failure",
			zap.String("run_id", runID),
			zap.Int("next_batch", run.NextBatch),
			zap.Error(cause))
		if err := p.discardRun(ctx, run); err != nil {
			p.log.Error("discard failed run", zap.String("run_id", runID), zap.Error(err))
		}
		return
	}
	run.Status = manifest.RunFailed
	run.LastError = cause.Error()
	if err := p.deps.Manifest.SaveRun(ctx, run); err != nil {
		p.log.Error("mark run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// discardRun drops a run together with its staged records and any batches it
// already wrote to the index.
func (p *Pipeline) discardRun(ctx context.Context, run manifest.Run) error {
	if run.NextBatch > 0 {
		if err := p.deps.Index.DeleteSources(ctx, run.Sources); err != nil {
			return fmt.Errorf("remove partial records of run %s: %w", run.ID, err)
		}
	}
	if err := NewStage(p.opts.DataOut, run.ID).Discard(); err != nil {
		return err
	}
	return p.deps.Manifest.DeleteRun(ctx, run.ID)
}


// IsRetryable reports whether an ingestion error is worth another attempt.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, util.ErrConfiguration) && !errors.Is(err, util.ErrData)
}
