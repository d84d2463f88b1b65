package jobs

import "context"

// Store persists job and unit states for restart recovery.
type Store interface {
	LoadJobs(ctx context.Context) ([]*TranslationJob, error)
	UpsertJob(ctx context.Context, job *TranslationJob) error
	DeleteJob(ctx context.Context, jobID string) error
	UpsertUnit(ctx context.Context, rec UnitRecord) error
	LoadUnits(ctx context.Context, jobID string) (map[string]UnitRecord, error)
}
