package jobs

import "github.com/MimeLyc/contextual-epub-translator/internal/model"

// The persisted row types live in internal/model so the storage layer
// can share them without importing this package. Aliased here so
// callers keep working against the jobs vocabulary.
type (
	Status         = model.Status
	UnitState      = model.UnitState
	TranslationJob = model.TranslationJob
	UnitRecord     = model.UnitRecord
)

const (
	StatusPending  = model.StatusPending
	StatusRunning  = model.StatusRunning
	StatusSuccess  = model.StatusSuccess
	StatusFailed   = model.StatusFailed
	StatusCanceled = model.StatusCanceled
)

const (
	UnitPending    = model.UnitPending
	UnitDispatched = model.UnitDispatched
	UnitSucceeded  = model.UnitSucceeded
	UnitRetrying   = model.UnitRetrying
	UnitFailed     = model.UnitFailed
)

// Progress is a point-in-time snapshot of a running job.
type Progress struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	CacheHits int `json:"cache_hits"`
	Degraded  int `json:"degraded"`
	Pending   int `json:"pending"`
}

// Done reports whether every unit reached a terminal state.
func (p Progress) Done() bool {
	return p.Pending == 0
}
