package service

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/contextual-epub-translator/internal/jobs"
	"github.com/MimeLyc/contextual-epub-translator/internal/library"
	"github.com/MimeLyc/contextual-epub-translator/pkg/log"
)

// scheduleParser accepts six-field expressions with a seconds column,
// e.g. "0 0 3 * * *" for a daily scan at 03:00.
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Watcher periodically scans the watch directory and starts jobs for
// books that have no translated counterpart yet. The manager's dedupe
// keeps repeated scans from double-starting a book.
type Watcher struct {
	scanner *library.Scanner
	manager *jobs.Manager
	cron    *cron.Cron
	expr    string

	sourceLang string
	targetLang string
	model      string
}

func NewWatcher(expr string, scanner *library.Scanner, manager *jobs.Manager, sourceLang, targetLang, model string) (*Watcher, error) {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return nil, fmt.Errorf("watch schedule: %w", err)
	}
	return &Watcher{
		scanner:    scanner,
		manager:    manager,
		cron:       cron.New(cron.WithParser(scheduleParser)),
		expr:       expr,
		sourceLang: sourceLang,
		targetLang: targetLang,
		model:      model,
	}, nil
}

// Start schedules periodic scans. The first scan runs immediately.
func (w *Watcher) Start() error {
	if _, err := w.cron.AddFunc(w.expr, w.RunOnce); err != nil {
		return err
	}
	w.cron.Start()
	w.RunOnce()
	return nil
}

// Stop halts the schedule; running jobs are unaffected.
func (w *Watcher) Stop() {
	w.cron.Stop()
}

// RunOnce performs a single scan-and-enqueue pass.
func (w *Watcher) RunOnce() {
	candidates, err := w.scanner.Scan()
	if err != nil {
		log.Error("library scan failed: %v", err)
		return
	}
	if len(candidates) == 0 {
		log.Debug("library scan: nothing to translate")
		return
	}

	for _, c := range candidates {
		job, err := w.manager.StartJob(jobs.StartRequest{
			SourcePath: c.SourcePath,
			OutputPath: c.OutputPath,
			SourceLang: w.sourceLang,
			TargetLang: w.targetLang,
			Model:      w.model,
		})
		if err != nil {
			log.Error("start job for %s failed: %v", c.SourcePath, err)
			continue
		}
		log.Info("queued %s as job %s", c.SourcePath, job.ID)
	}
}
