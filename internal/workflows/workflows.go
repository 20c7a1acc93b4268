package workflows

import (
	"time"

	"lexrag/internal/activities"
	"lexrag/internal/ingest"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetProgress = "GetProgress"

	// IngestWorkflowID is fixed so Temporal refuses a second concurrent ingestion.
	IngestWorkflowID = "lexrag-ingest"
)

func ingestRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        2 * time.Second,
		BackoffCoefficient:     2,
		MaximumInterval:        30 * time.Second,
		MaximumAttempts:        5,
		NonRetryableErrorTypes: []string{activities.ErrTypeConfiguration, activities.ErrTypeData},
	}
}

func IngestWorkflow(ctx workflow.Context, input IngestInput) (ingest.Report, error) {
	progress := IngestProgress{
		CurrentStep: "init",
		Status:      "running",
		Steps:       map[string]string{},
		PerSource:   map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (IngestProgress, error) {
		return progress, nil
	}); err != nil {
		return ingest.Report{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         ingestRetryPolicy(),
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	rep := ingest.Report{
		Reset:     input.Reset,
		StartedAt: workflow.Now(ctx),
		Skipped:   []string{},
		Failed:    []ingest.SourceFailure{},
		Ingested:  []string{},
	}
	step := func(name string) {
		progress.CurrentStep = name
		progress.Steps[name] = "processing"
	}
	fail := func(err error) (ingest.Report, error) {
		progress.Steps[progress.CurrentStep] = "failed"
		progress.Status = "failed"
		return rep, err
	}

	if input.Reset {
		step("reset_index")
		if err := workflow.ExecuteActivity(ctx, "ResetIndexActivity").Get(ctx, nil); err != nil {
			return fail(err)
		}
		progress.Steps[progress.CurrentStep] = "done"
	}

	step("ensure_index")
	var ensured activities.EnsureIndexOutput
	if err := workflow.ExecuteActivity(ctx, "EnsureIndexActivity").Get(ctx, &ensured); err != nil {
		return fail(err)
	}
	progress.Steps[progress.CurrentStep] = "done"

	step("resume_run")
	var resumed activities.ResumeRunOutput
	if err := workflow.ExecuteActivity(ctx, "ResumeRunActivity").Get(ctx, &resumed); err != nil {
		return fail(err)
	}
	progress.Steps[progress.CurrentStep] = "done"

	rep.Resumed = resumed.Found
	progress.Resumed = resumed.Found

	// commit writes batches next..batches-1 of a sealed run and commits it.
	commit := func(runID string, batches, next int, r ingest.Report) (ingest.Report, error) {
		progress.RunID = runID
		progress.Batches = batches
		progress.BatchesWritten = next
		r.RunID = runID
		r.Batches = batches

		step("upsert_batches")
		for i := next; i < batches; i++ {
			if err := workflow.ExecuteActivity(ctx, "UpsertBatchActivity", activities.UpsertBatchInput{RunID: runID, Batch: i}).Get(ctx, nil); err != nil {
				r.BatchesWritten = progress.BatchesWritten - next
				return r, err
			}
			progress.BatchesWritten = i + 1
		}
		r.BatchesWritten = progress.BatchesWritten - next
		progress.Steps[progress.CurrentStep] = "done"

		step("commit_run")
		var committed ingest.Report
		if err := workflow.ExecuteActivity(ctx, "CommitRunActivity", activities.CommitRunInput{RunID: runID, Report: finish(ctx, r)}).Get(ctx, &committed); err != nil {
			return r, err
		}
		progress.Steps[progress.CurrentStep] = "done"
		return committed, nil
	}

	var prior ingest.Report
	if resumed.Found {
		done, err := commit(resumed.RunID, resumed.Batches, resumed.NextBatch, rep)
		if err != nil {
			rep = done
			return fail(err)
		}
		prior = done
	}

	step("discover_sources")
	var disc activities.DiscoverSourcesOutput
	if err := workflow.ExecuteActivity(ctx, "DiscoverSourcesActivity").Get(ctx, &disc); err != nil {
		return fail(err)
	}
	progress.Steps[progress.CurrentStep] = "done"
	rep.Discovered = disc.Discovered
	rep.Skipped = append(rep.Skipped, disc.Skipped...)
	progress.Discovered = disc.Discovered
	progress.Total = len(disc.Sources)
	if disc.RunID == "" {
		logger.Info("no new documents to ingest", "existing", len(disc.Skipped))
		progress.CurrentStep = "done"
		progress.Status = "completed"
		return finish(ctx, ingest.MergeReports(prior, rep)), nil
	}
	runID := disc.RunID
	progress.RunID = runID
	progress.Staged = 0
	progress.Failed = 0

	step("stage_documents")
	for _, sf := range disc.Sources {
		progress.PerSource[sf.Source] = "staging"
		var staged activities.StageDocumentOutput
		if err := workflow.ExecuteActivity(ctx, "StageDocumentActivity", activities.StageDocumentInput{RunID: runID, Source: sf}).Get(ctx, &staged); err != nil {
			progress.PerSource[sf.Source] = "failed"
			return fail(err)
		}
		if staged.Skipped {
			progress.Failed++
			progress.PerSource[sf.Source] = "skipped"
			rep.Failed = append(rep.Failed, ingest.SourceFailure{Source: sf.Source, Error: staged.Reason})
			continue
		}
		progress.Staged++
		progress.PerSource[sf.Source] = "staged"
	}
	progress.Steps[progress.CurrentStep] = "done"

	step("seal_run")
	var sealed activities.SealRunOutput
	if err := workflow.ExecuteActivity(ctx, "SealRunActivity", activities.SealRunInput{RunID: runID}).Get(ctx, &sealed); err != nil {
		return fail(err)
	}
	progress.Steps[progress.CurrentStep] = "done"

	done, err := commit(runID, sealed.Batches, 0, rep)
	if err != nil {
		rep = ingest.MergeReports(prior, done)
		return fail(err)
	}
	progress.CurrentStep = "done"
	progress.Status = "completed"
	return ingest.MergeReports(prior, done), nil
}

func finish(ctx workflow.Context, rep ingest.Report) ingest.Report {
	rep.FinishedAt = workflow.Now(ctx)
	rep.DurationMS = rep.FinishedAt.Sub(rep.StartedAt).Milliseconds()
	return rep
}
