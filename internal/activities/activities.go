package activities

import (
	"context"
	"errors"

	"lexrag/internal/ingest"
	"lexrag/internal/util"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// Error types reported to Temporal for failures that retrying cannot fix.
const (
	ErrTypeConfiguration = "ConfigurationError"
	ErrTypeData          = "DataError"
)

type Activities struct {
	pipeline *ingest.Pipeline
	log      *zap.Logger
}

func New(p *ingest.Pipeline, log *zap.Logger) *Activities {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activities{pipeline: p, log: log}
}

func (a *Activities) ResetIndexActivity(ctx context.Context) error {
	return classify(a.pipeline.Reset(ctx))
}

func (a *Activities) EnsureIndexActivity(ctx context.Context) (EnsureIndexOutput, error) {
	created, err := a.pipeline.EnsureIndex(ctx)
	if err != nil {
		return EnsureIndexOutput{}, classify(err)
	}
	return EnsureIndexOutput{Created: created}, nil
}

func (a *Activities) ResumeRunActivity(ctx context.Context) (ResumeRunOutput, error) {
	run, ok, err := a.pipeline.Resume(ctx)
	if err != nil {
		return ResumeRunOutput{}, classify(err)
	}
	if !ok {
		return ResumeRunOutput{}, nil
	}
	return ResumeRunOutput{Found: true, RunID: run.ID, Batches: run.Batches(), NextBatch: run.NextBatch}, nil
}

// DiscoverSourcesActivity lists new sources and, when there are any, opens a run for them.
func (a *Activities) DiscoverSourcesActivity(ctx context.Context) (DiscoverSourcesOutput, error) {
	fresh, skipped, err := a.pipeline.Discover(ctx)
	if err != nil {
		return DiscoverSourcesOutput{}, classify(err)
	}
	out := DiscoverSourcesOutput{
		Discovered: len(fresh) + len(skipped),
		Sources:    fresh,
		Skipped:    make([]string, 0, len(skipped)),
	}
	for _, sf := range skipped {
		out.Skipped = append(out.Skipped, sf.Source)
	}
	if len(fresh) == 0 {
		return out, nil
	}
	run, err := a.pipeline.StartRun(ctx, fresh)
	if err != nil {
		return DiscoverSourcesOutput{}, classify(err)
	}
	out.RunID = run.ID
	return out, nil
}

func (a *Activities) StageDocumentActivity(ctx context.Context, in StageDocumentInput) (StageDocumentOutput, error) {
	out, err := a.pipeline.StageDocument(ctx, in.RunID, in.Source)
	return out, classify(err)
}

func (a *Activities) SealRunActivity(ctx context.Context, in SealRunInput) (SealRunOutput, error) {
	run, err := a.pipeline.SealRun(ctx, in.RunID)
	if err != nil {
		return SealRunOutput{}, classify(err)
	}
	return SealRunOutput{Records: run.Records, Batches: run.Batches()}, nil
}

func (a *Activities) UpsertBatchActivity(ctx context.Context, in UpsertBatchInput) error {
	return classify(a.pipeline.UpsertBatch(ctx, in.RunID, in.Batch))
}

func (a *Activities) CommitRunActivity(ctx context.Context, in CommitRunInput) (ingest.Report, error) {
	rep, err := a.pipeline.CommitRun(ctx, in.RunID, in.Report)
	return rep, classify(err)
}

// classify marks configuration and data errors as non-retryable.
func classify(err error) error {
	if err == nil || ingest.IsRetryable(err) {
		return err
	}
	errType := ErrTypeData
	if errors.Is(err, util.ErrConfiguration) {
		errType = ErrTypeConfiguration
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}
