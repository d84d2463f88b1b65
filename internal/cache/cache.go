// Package cache is the durable translation cache. Completed unit
// translations are committed before results are joined back into
// documents, so an interrupted job never pays twice for the same text.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/MimeLyc/contextual-epub-translator/internal/persistence"
	"github.com/MimeLyc/contextual-epub-translator/pkg/log"
)

// ErrCacheConflict reports that a commit carried a different translation
// than the one already stored under the same fingerprint. The stored
// value wins; the conflict is logged and the job continues.
var ErrCacheConflict = errors.New("cache: conflicting translation for fingerprint")

// Store is the persistence surface the cache needs.
type Store interface {
	PutTranslation(ctx context.Context, entry persistence.TranslationEntry) (persistence.TranslationEntry, bool, error)
	GetTranslation(ctx context.Context, fingerprint string) (persistence.TranslationEntry, bool, error)
}

// Entry is the unit of cache traffic.
type Entry struct {
	Fingerprint    string
	SourceText     string
	TranslatedText string
	SourceLang     string
	TargetLang     string
	Model          string
}

type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Lookup returns the cached translation for a fingerprint, if any.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	entry, ok, err := c.store.GetTranslation(ctx, fingerprint)
	if err != nil || !ok {
		return "", false, err
	}
	return entry.TranslatedText, true, nil
}

// Commit stores a completed translation and returns the canonical text
// for the fingerprint. When another writer got there first with a
// different translation, the stored value is kept and returned; the
// conflict is logged, not fatal.
func (c *Cache) Commit(ctx context.Context, e Entry) (string, error) {
	stored, inserted, err := c.store.PutTranslation(ctx, persistence.TranslationEntry{
		Fingerprint:    e.Fingerprint,
		SourceText:     e.SourceText,
		TranslatedText: e.TranslatedText,
		SourceLang:     e.SourceLang,
		TargetLang:     e.TargetLang,
		Model:          e.Model,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if !inserted && stored.TranslatedText != e.TranslatedText {
		log.Warn("%v: fingerprint=%s, keeping stored value", ErrCacheConflict, e.Fingerprint)
	}
	return stored.TranslatedText, nil
}
