// Package model holds the persisted row types shared by the job
// coordinator and the storage layer.
package model

import "time"

// Status is the lifecycle state of a whole translation job.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// UnitState is the lifecycle state of one translation unit within a job.
type UnitState string

const (
	UnitPending    UnitState = "pending"
	UnitDispatched UnitState = "dispatched"
	UnitSucceeded  UnitState = "succeeded"
	UnitRetrying   UnitState = "retrying"
	// UnitFailed marks a unit that exhausted its retry budget. The job
	// completes with the unit's source text left in place.
	UnitFailed UnitState = "failed_permanently"
)

// TranslationJob is one book translation from intake to written output.
type TranslationJob struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	OutputPath string    `json:"output_path"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	Model      string    `json:"model"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UnitRecord is the persisted state of one unit, keyed by its position
// reference. Restarting a job resumes from these records plus the
// translation cache.
type UnitRecord struct {
	JobID       string    `json:"job_id"`
	RefKey      string    `json:"ref_key"`
	Fingerprint string    `json:"fingerprint"`
	State       UnitState `json:"state"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
