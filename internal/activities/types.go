package activities

import (
	"lexrag/internal/ingest"
	"lexrag/internal/models"
)

type EnsureIndexOutput struct {
	Created bool `json:"created"`
}

type ResumeRunOutput struct {
	Found     bool   `json:"found"`
	RunID     string `json:"run_id,omitempty"`
	Batches   int    `json:"batches"`
	NextBatch int    `json:"next_batch"`
}

type DiscoverSourcesOutput struct {
	RunID      string              `json:"run_id,omitempty"`
	Discovered int                 `json:"discovered"`
	Sources    []models.SourceFile `json:"sources"`
	Skipped    []string            `json:"skipped"`
}

type StageDocumentInput struct {
	RunID  string            `json:"run_id"`
	Source models.SourceFile `json:"source"`
}

type StageDocumentOutput = ingest.StagedSource

type SealRunInput struct {
	RunID string `json:"run_id"`
}

type SealRunOutput struct {
	Records int `json:"records"`
	Batches int `json:"batches"`
}

type UpsertBatchInput struct {
	RunID string `json:"run_id"`
	Batch int    `json:"batch"`
}

type CommitRunInput struct {
	RunID  string        `json:"run_id"`
	Report ingest.Report `json:"report"`
}
