package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/contextual-epub-translator/internal/jobs"
	"github.com/MimeLyc/contextual-epub-translator/internal/library"
	"github.com/MimeLyc/contextual-epub-translator/internal/persistence"
)

func TestWatcherRejectsBadSchedule(t *testing.T) {
	_, err := NewWatcher("not a cron expr", nil, nil, "", "zh", "m")
	assert.Error(t, err)
}

func TestWatcherQueuesScannedBooks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.epub"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.epub"), []byte("x"), 0o644))

	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "db.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var mu sync.Mutex
	var seen []string
	release := make(chan struct{})
	manager := jobs.NewManager(store, func(ctx context.Context, job *jobs.TranslationJob, report func(jobs.Progress)) error {
		mu.Lock()
		seen = append(seen, job.SourcePath)
		mu.Unlock()
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	scanner := library.NewScanner(dir, "", language.MustParse("zh-Hant"))
	w, err := NewWatcher("0 0 0 * * *", scanner, manager, "ja", "zh-Hant", "test/model")
	require.NoError(t, err)

	w.RunOnce()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 10*time.Millisecond)

	list := manager.List()
	require.Len(t, list, 2)
	for _, job := range list {
		assert.Equal(t, "zh-Hant", job.TargetLang)
		assert.Equal(t, "ja", job.SourceLang)
	}

	// Both jobs are still running, so a rescan must not double-start
	// them.
	w.RunOnce()
	assert.Len(t, manager.List(), 2)

	close(release)
	for _, job := range list {
		require.NoError(t, manager.Wait(job.ID))
	}
}
