package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/contextual-epub-translator/pkg/log"
)

// Executor runs the full pipeline for one job, reporting progress as
// units settle.
type Executor func(ctx context.Context, job *TranslationJob, report func(Progress)) error

// StartRequest describes a new book translation.
type StartRequest struct {
	SourcePath string
	OutputPath string
	SourceLang string
	TargetLang string
	Model      string
}

// Manager owns the job registry. Each started job gets an opaque handle
// and runs on its own cancellable context; there is no process-global
// state, so several managers can coexist in one process.
type Manager struct {
	store Store
	exec  Executor

	mu       sync.RWMutex
	jobs     map[string]*TranslationJob
	active   map[string]*runningJob
	dedupe   map[string]string
	progress map[string]Progress
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(store Store, exec Executor) *Manager {
	return &Manager{
		store:    store,
		exec:     exec,
		jobs:     make(map[string]*TranslationJob),
		active:   make(map[string]*runningJob),
		dedupe:   make(map[string]string),
		progress: make(map[string]Progress),
	}
}

// StartJob registers and launches a translation job, returning its
// handle immediately. A job for the same source and target language that
// is still active is returned instead of duplicated.
func (m *Manager) StartJob(req StartRequest) (*TranslationJob, error) {
	if req.SourcePath == "" || req.OutputPath == "" || req.TargetLang == "" {
		return nil, fmt.Errorf("source path, output path and target language are required")
	}

	key := req.SourcePath + "|" + req.TargetLang
	now := time.Now().UTC()

	m.mu.Lock()
	if id, ok := m.dedupe[key]; ok {
		if existing, exists := m.jobs[id]; exists && !isTerminal(existing.Status) {
			snapshot := *existing
			m.mu.Unlock()
			return &snapshot, nil
		}
		delete(m.dedupe, key)
	}

	job := &TranslationJob{
		ID:         uuid.NewString(),
		SourcePath: req.SourcePath,
		OutputPath: req.OutputPath,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Model:      req.Model,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.jobs[job.ID] = job
	m.dedupe[key] = job.ID
	m.mu.Unlock()

	m.persist(job)
	m.launch(job)

	snapshot := *job
	return &snapshot, nil
}

// Resume reloads persisted jobs and relaunches any that never finished.
func (m *Manager) Resume(ctx context.Context) error {
	stored, err := m.store.LoadJobs(ctx)
	if err != nil {
		return err
	}

	var restart []*TranslationJob
	m.mu.Lock()
	for _, job := range stored {
		if _, exists := m.jobs[job.ID]; exists {
			continue
		}
		m.jobs[job.ID] = job
		m.dedupe[job.SourcePath+"|"+job.TargetLang] = job.ID
		if !isTerminal(job.Status) {
			restart = append(restart, job)
		}
	}
	m.mu.Unlock()

	for _, job := range restart {
		log.Info("resuming job %s (%s)", job.ID, job.SourcePath)
		m.launch(job)
	}
	return nil
}

func (m *Manager) launch(job *TranslationJob) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &runningJob{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.active[job.ID] = run
	m.mu.Unlock()

	m.setStatus(job.ID, StatusRunning, "")

	go func() {
		defer close(run.done)
		defer cancel()

		snapshot := m.snapshot(job.ID)
		err := m.exec(ctx, snapshot, func(p Progress) {
			m.mu.Lock()
			m.progress[job.ID] = p
			m.mu.Unlock()
		})

		m.mu.Lock()
		delete(m.active, job.ID)
		m.mu.Unlock()

		switch {
		case err == nil:
			m.setStatus(job.ID, StatusSuccess, "")
		case errors.Is(err, context.Canceled):
			m.setStatus(job.ID, StatusCanceled, "")
		default:
			log.Error("job %s failed: %v", job.ID, err)
			m.setStatus(job.ID, StatusFailed, err.Error())
		}
	}()
}

// Progress reports the latest unit counters for an active or finished
// job.
func (m *Manager) Progress(jobID string) (Progress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, known := m.jobs[jobID]; !known {
		return Progress{}, false
	}
	return m.progress[jobID], true
}

// Cancel stops a running job. The job's completed units stay in the
// cache, so a later restart resumes instead of starting over.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.RLock()
	run, ok := m.active[jobID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// Wait blocks until the job reaches a terminal state and returns its
// recorded error, if any.
func (m *Manager) Wait(jobID string) error {
	m.mu.RLock()
	run, active := m.active[jobID]
	m.mu.RUnlock()

	if active {
		<-run.done
	}

	job, ok := m.Get(jobID)
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	if job.Status == StatusFailed {
		return errors.New(job.Error)
	}
	return nil
}

// Delete destroys a finished job's registry entry and persisted rows.
// The translation cache is untouched, so re-translating the same book
// later still resumes for free. Active jobs must be cancelled first.
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown job %s", jobID)
	}
	if _, running := m.active[jobID]; running || !isTerminal(job.Status) {
		m.mu.Unlock()
		return fmt.Errorf("job %s is still active", jobID)
	}
	delete(m.jobs, jobID)
	delete(m.progress, jobID)
	key := job.SourcePath + "|" + job.TargetLang
	if m.dedupe[key] == jobID {
		delete(m.dedupe, key)
	}
	m.mu.Unlock()

	return m.store.DeleteJob(ctx, jobID)
}

func (m *Manager) Get(jobID string) (*TranslationJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

func (m *Manager) List() []*TranslationJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*TranslationJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		ret = append(ret, &snapshot)
	}
	return ret
}

func (m *Manager) setStatus(jobID string, status Status, errMsg string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	snapshot := *job
	m.mu.Unlock()

	m.persist(&snapshot)
}

func (m *Manager) snapshot(jobID string) *TranslationJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := *m.jobs[jobID]
	return &snapshot
}

func (m *Manager) persist(job *TranslationJob) {
	if err := m.store.UpsertJob(context.Background(), job); err != nil {
		log.Warn("persist job %s failed: %v", job.ID, err)
	}
}

func isTerminal(status Status) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusCanceled:
		return true
	}
	return false
}
