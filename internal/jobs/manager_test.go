package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartJobRunsToSuccess(t *testing.T) {
	store := newMemStore()
	var executed int32
	m := NewManager(store, func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		atomic.AddInt32(&executed, 1)
		report(Progress{Total: 3, Succeeded: 3})
		return nil
	})

	job, err := m.StartJob(StartRequest{
		SourcePath: "/books/novel.epub",
		OutputPath: "/books/novel.zh.epub",
		TargetLang: "zh-Hant",
		Model:      "test/model",
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	require.NoError(t, m.Wait(job.ID))
	assert.Equal(t, int32(1), atomic.LoadInt32(&executed))

	final, ok := m.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, final.Status)

	progress, ok := m.Progress(job.ID)
	require.True(t, ok)
	assert.Equal(t, 3, progress.Succeeded)

	// Terminal state reaches the store.
	require.Eventually(t, func() bool {
		stored, err := store.LoadJobs(context.Background())
		return err == nil && len(stored) == 1 && stored[0].Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestStartJobValidatesRequest(t *testing.T) {
	m := NewManager(newMemStore(), func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		return nil
	})
	_, err := m.StartJob(StartRequest{SourcePath: "x"})
	assert.Error(t, err)
}

func TestStartJobDeduplicatesActiveJobs(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(newMemStore(), func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		<-release
		return nil
	})

	req := StartRequest{SourcePath: "/books/a.epub", OutputPath: "/out/a.epub", TargetLang: "zh"}
	first, err := m.StartJob(req)
	require.NoError(t, err)
	second, err := m.StartJob(req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	close(release)
	require.NoError(t, m.Wait(first.ID))

	// A finished job does not block a fresh run of the same book.
	third, err := m.StartJob(req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	require.NoError(t, m.Wait(third.ID))
}

func TestJobFailureIsRecorded(t *testing.T) {
	m := NewManager(newMemStore(), func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		return fmt.Errorf("archive write failed")
	})

	job, err := m.StartJob(StartRequest{SourcePath: "a", OutputPath: "b", TargetLang: "zh"})
	require.NoError(t, err)

	err = m.Wait(job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive write failed")

	final, _ := m.Get(job.ID)
	assert.Equal(t, StatusFailed, final.Status)
}

func TestCancelStopsJob(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(newMemStore(), func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	job, err := m.StartJob(StartRequest{SourcePath: "a", OutputPath: "b", TargetLang: "zh"})
	require.NoError(t, err)
	<-started

	require.True(t, m.Cancel(job.ID))
	require.NoError(t, m.Wait(job.ID))

	final, _ := m.Get(job.ID)
	assert.Equal(t, StatusCanceled, final.Status)

	assert.False(t, m.Cancel("unknown"))
}

func TestResumeRestartsUnfinishedJobs(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	require.NoError(t, store.UpsertJob(context.Background(), &TranslationJob{
		ID: "stale-1", SourcePath: "a", OutputPath: "b", TargetLang: "zh",
		Status: StatusRunning, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.UpsertJob(context.Background(), &TranslationJob{
		ID: "done-1", SourcePath: "c", OutputPath: "d", TargetLang: "zh",
		Status: StatusSuccess, CreatedAt: now, UpdatedAt: now,
	}))

	var executed int32
	m := NewManager(store, func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})
	require.NoError(t, m.Resume(context.Background()))

	require.NoError(t, m.Wait("stale-1"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&executed))

	// The finished job is registered but not re-executed.
	done, ok := m.Get("done-1")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, done.Status)
	assert.Len(t, m.List(), 2)
}

func TestDeleteRemovesFinishedJob(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		return nil
	})

	job, err := m.StartJob(StartRequest{
		SourcePath: "/books/novel.epub",
		OutputPath: "/books/novel.zh.epub",
		TargetLang: "zh-Hant",
	})
	require.NoError(t, err)
	require.NoError(t, m.Wait(job.ID))

	require.NoError(t, m.Delete(context.Background(), job.ID))
	_, ok := m.Get(job.ID)
	assert.False(t, ok)
	stored, err := store.LoadJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)

	assert.Error(t, m.Delete(context.Background(), job.ID))
}

func TestDeleteRejectsRunningJob(t *testing.T) {
	store := newMemStore()
	release := make(chan struct{})
	m := NewManager(store, func(ctx context.Context, job *TranslationJob, report func(Progress)) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	job, err := m.StartJob(StartRequest{
		SourcePath: "/books/a.epub",
		OutputPath: "/books/a.zh.epub",
		TargetLang: "zh-Hant",
	})
	require.NoError(t, err)

	assert.Error(t, m.Delete(context.Background(), job.ID))

	close(release)
	require.NoError(t, m.Wait(job.ID))
	require.NoError(t, m.Delete(context.Background(), job.ID))
}
