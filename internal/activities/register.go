package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ResetIndexActivity)
	w.RegisterActivity(a.EnsureIndexActivity)
	w.RegisterActivity(a.ResumeRunActivity)
	w.RegisterActivity(a.DiscoverSourcesActivity)
	w.RegisterActivity(a.StageDocumentActivity)
	w.RegisterActivity(a.SealRunActivity)
	w.RegisterActivity(a.UpsertBatchActivity)
	w.RegisterActivity(a.CommitRunActivity)
}
