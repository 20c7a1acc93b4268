package workflows

type IngestInput struct {
	Reset bool `json:"reset"`
}

type IngestProgress struct {
	RunID          string            `json:"run_id,omitempty"`
	CurrentStep    string            `json:"current_step"`
	Status         string            `json:"status"`
	Resumed        bool              `json:"resumed"`
	Discovered     int               `json:"discovered"`
	Total          int               `json:"total"`
	Staged         int               `json:"staged"`
	Failed         int               `json:"failed"`
	Batches        int               `json:"batches"`
	BatchesWritten int               `json:"batches_written"`
	Steps          map[string]string `json:"steps"`
	PerSource      map[string]string `json:"per_source_status"`
}
