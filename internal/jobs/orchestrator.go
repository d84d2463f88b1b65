// Package jobs coordinates translation work: the orchestrator drives
// per-unit translation through a worker pool with retry scheduling, and
// the manager tracks whole-book jobs from intake to completion.
package jobs

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/contextual-epub-translator/internal/cache"
	"github.com/MimeLyc/contextual-epub-translator/internal/markup"
	"github.com/MimeLyc/contextual-epub-translator/internal/translator"
	"github.com/MimeLyc/contextual-epub-translator/pkg/log"
)

// WorkUnit is one translation unit handed to the orchestrator.
type WorkUnit struct {
	Ref     markup.Ref
	Text    string
	Context string
}

// Result is the terminal outcome for one unit. Degraded units carry
// their source text so failures stay visible instead of dropping text.
type Result struct {
	Ref       markup.Ref
	Text      string
	Degraded  bool
	FromCache bool
}

// Options bounds the orchestrator's concurrency and retry policy.
type Options struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	return o
}

// Orchestrator runs translation units through a bounded worker pool.
// Identical texts in flight are collapsed through singleflight, so two
// jobs never pay twice for the same unit.
type Orchestrator struct {
	translator translator.Translator
	cache      *cache.Cache
	store      Store
	opts       Options
	group      singleflight.Group
}

func NewOrchestrator(t translator.Translator, c *cache.Cache, store Store, opts Options) *Orchestrator {
	return &Orchestrator{
		translator: t,
		cache:      c,
		store:      store,
		opts:       opts.withDefaults(),
	}
}

// task is one unique fingerprint awaiting translation. units lists the
// indices of all work units sharing the fingerprint.
type task struct {
	fingerprint string
	units       []int
	attempts    int
	nextAttempt time.Time
}

type outcome struct {
	task *task
	text string
	err  error
}

// Run translates every unit and returns one terminal result per unit in
// input order. Cached units resolve without touching the backend.
// Cancellation stops dispatching new work, lets in-flight requests
// drain, and returns the context error; completed work is already
// committed to the cache, so a rerun resumes where this one stopped.
func (o *Orchestrator) Run(
	ctx context.Context,
	job *TranslationJob,
	meta translator.BookMeta,
	units []WorkUnit,
	onProgress func(Progress),
) ([]Result, error) {
	results := make([]Result, len(units))
	progress := Progress{Total: len(units), Pending: len(units)}
	report := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}
	report()

	fingerprints := make([]string, len(units))
	for i, u := range units {
		fingerprints[i] = cache.Fingerprint(
			u.Text, job.SourceLang, job.TargetLang, job.Model, cache.ContextDigest(u.Context))
	}

	persisted, err := o.store.LoadUnits(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	// Resolve cache hits first, then group the rest by fingerprint so
	// repeated text costs one backend call.
	byFingerprint := make(map[string]*task)
	var pending []*task
	for i, u := range units {
		fp := fingerprints[i]
		if text, ok, err := o.cache.Lookup(ctx, fp); err != nil {
			return nil, err
		} else if ok {
			results[i] = Result{Ref: u.Ref, Text: text, FromCache: true}
			progress.Succeeded++
			progress.CacheHits++
			progress.Pending--
			o.persistUnit(ctx, job.ID, u.Ref, fp, UnitSucceeded, 0, "")
			continue
		}

		t, ok := byFingerprint[fp]
		if !ok {
			t = &task{fingerprint: fp}
			if rec, found := persisted[u.Ref.Key()]; found {
				t.attempts = rec.Attempts
			}
			byFingerprint[fp] = t
			pending = append(pending, t)
		}
		t.units = append(t.units, i)
		o.persistUnit(ctx, job.ID, u.Ref, fp, UnitPending, t.attempts, "")
	}
	report()

	if len(pending) == 0 {
		return results, nil
	}

	workCh := make(chan *task)
	doneCh := make(chan outcome)

	// Dispatch is gated on gctx, but a unit already handed to a worker
	// runs its backend call to completion even across cancellation: the
	// spent call is committed to the cache instead of being torn down.
	g, gctx := errgroup.WithContext(ctx)
	taskCtx := context.WithoutCancel(ctx)
	for range o.opts.Workers {
		g.Go(func() error {
			for t := range workCh {
				text, err := o.translateTask(taskCtx, job, meta, units[t.units[0]])
				doneCh <- outcome{task: t, text: text, err: err}
			}
			return nil
		})
	}

	succeed := func(t *task, text string) {
		for _, idx := range t.units {
			results[idx] = Result{Ref: units[idx].Ref, Text: text}
			o.persistUnit(ctx, job.ID, units[idx].Ref, t.fingerprint, UnitSucceeded, t.attempts, "")
		}
		progress.Succeeded += len(t.units)
		progress.Pending -= len(t.units)
		report()
	}
	degrade := func(t *task, cause error) {
		log.Warn("job %s: unit %s degraded after %d attempts: %v",
			job.ID, units[t.units[0]].Ref.Key(), t.attempts, cause)
		for _, idx := range t.units {
			results[idx] = Result{Ref: units[idx].Ref, Text: units[idx].Text, Degraded: true}
			o.persistUnit(ctx, job.ID, units[idx].Ref, t.fingerprint, UnitFailed, t.attempts, cause.Error())
		}
		progress.Degraded += len(t.units)
		progress.Pending -= len(t.units)
		report()
	}

	handle := func(out outcome) {
		t := out.task
		switch {
		case out.err == nil:
			succeed(t, out.text)

		case gctx.Err() != nil:
			// Shutdown in progress; the unit stays pending for the next
			// run.
			o.persistUnit(ctx, job.ID, units[t.units[0]].Ref, t.fingerprint, UnitPending, t.attempts, out.err.Error())

		case translator.IsTransient(out.err):
			t.attempts++
			if t.attempts >= o.opts.MaxAttempts {
				degrade(t, out.err)
				return
			}
			t.nextAttempt = time.Now().Add(o.backoff(t.attempts))
			for _, idx := range t.units {
				o.persistUnit(ctx, job.ID, units[idx].Ref, t.fingerprint, UnitRetrying, t.attempts, out.err.Error())
			}
			pending = append(pending, t)

		default:
			t.attempts++
			degrade(t, out.err)
		}
	}

	inFlight := 0
	canceled := false
	for (len(pending) > 0 || inFlight > 0) && !canceled {
		now := time.Now()
		eligible := -1
		var earliest time.Time
		for i, t := range pending {
			if !t.nextAttempt.After(now) {
				eligible = i
				break
			}
			if earliest.IsZero() || t.nextAttempt.Before(earliest) {
				earliest = t.nextAttempt
			}
		}

		if eligible >= 0 {
			next := pending[eligible]
			select {
			case workCh <- next:
				pending = append(pending[:eligible], pending[eligible+1:]...)
				inFlight++
				for _, idx := range next.units {
					o.persistUnit(ctx, job.ID, units[idx].Ref, next.fingerprint, UnitDispatched, next.attempts, "")
				}
			case out := <-doneCh:
				inFlight--
				handle(out)
			case <-gctx.Done():
				canceled = true
			}
			continue
		}

		// Nothing eligible yet: wait for a completion, the earliest
		// retry time, or shutdown. No worker sleeps holding a unit.
		var timer *time.Timer
		var timerC <-chan time.Time
		if len(pending) > 0 {
			timer = time.NewTimer(time.Until(earliest))
			timerC = timer.C
		}
		select {
		case out := <-doneCh:
			inFlight--
			handle(out)
		case <-timerC:
		case <-gctx.Done():
			canceled = true
		}
		if timer != nil {
			timer.Stop()
		}
	}

	close(workCh)
	for inFlight > 0 {
		out := <-doneCh
		inFlight--
		handle(out)
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, nil
}

// translateTask calls the backend once per fingerprint and commits the
// translation to the cache before the result is joined back, so a crash
// after this point costs nothing on rerun.
func (o *Orchestrator) translateTask(ctx context.Context, job *TranslationJob, meta translator.BookMeta, unit WorkUnit) (string, error) {
	fp := cache.Fingerprint(unit.Text, job.SourceLang, job.TargetLang, job.Model, cache.ContextDigest(unit.Context))
	v, err, _ := o.group.Do(fp, func() (interface{}, error) {
		translated, err := o.translator.Translate(ctx, translator.Request{
			Text:       unit.Text,
			Context:    unit.Context,
			SourceLang: job.SourceLang,
			TargetLang: job.TargetLang,
			Meta:       meta,
		})
		if err != nil {
			return nil, err
		}
		canonical, err := o.cache.Commit(ctx, cache.Entry{
			Fingerprint:    fp,
			SourceText:     unit.Text,
			TranslatedText: translated,
			SourceLang:     job.SourceLang,
			TargetLang:     job.TargetLang,
			Model:          job.Model,
		})
		if err != nil {
			return nil, err
		}
		return canonical, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// backoff returns the jittered exponential delay before retry n.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.opts.BackoffCap {
			d = o.opts.BackoffCap
			break
		}
	}
	// Jitter in [d/2, d) spreads retries from simultaneous failures.
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// persistUnit records unit state on its own context so shutdown still
// leaves resumable state behind.
func (o *Orchestrator) persistUnit(_ context.Context, jobID string, ref markup.Ref, fp string, state UnitState, attempts int, lastError string) {
	err := o.store.UpsertUnit(context.Background(), UnitRecord{
		JobID:       jobID,
		RefKey:      ref.Key(),
		Fingerprint: fp,
		State:       state,
		Attempts:    attempts,
		LastError:   lastError,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		log.Warn("job %s: persist unit %s failed: %v", jobID, ref.Key(), err)
	}
}
