// Package persistence stores jobs, per-unit progress and the translation
// cache in a single SQLite database so interrupted runs resume without
// re-translating completed work.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/contextual-epub-translator/internal/model"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// TranslationEntry is one cached translation keyed by fingerprint.
type TranslationEntry struct {
	Fingerprint    string
	SourceText     string
	TranslatedText string
	SourceLang     string
	TargetLang     string
	Model          string
	CreatedAt      time.Time
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *model.TranslationJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source_path, output_path, source_lang, target_lang, model, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path=excluded.source_path,
			output_path=excluded.output_path,
			source_lang=excluded.source_lang,
			target_lang=excluded.target_lang,
			model=excluded.model,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.SourcePath,
		job.OutputPath,
		job.SourceLang,
		job.TargetLang,
		job.Model,
		string(job.Status),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*model.TranslationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_path, output_path, source_lang, target_lang, model, status, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*model.TranslationJob, 0)
	for rows.Next() {
		var item model.TranslationJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.SourcePath,
			&item.OutputPath,
			&item.SourceLang,
			&item.TargetLang,
			&item.Model,
			&status,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = model.Status(status)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_units WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertUnit(ctx context.Context, rec model.UnitRecord) error {
	updatedAt := rec.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO job_units (job_id, ref_key, fingerprint, state, attempts, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, ref_key) DO UPDATE SET
			fingerprint=excluded.fingerprint,
			state=excluded.state,
			attempts=excluded.attempts,
			last_error=excluded.last_error,
			updated_at=excluded.updated_at`,
		rec.JobID,
		rec.RefKey,
		rec.Fingerprint,
		string(rec.State),
		rec.Attempts,
		rec.LastError,
		updatedAt,
	)
	return err
}

func (s *SQLiteStore) LoadUnits(ctx context.Context, jobID string) (map[string]model.UnitRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT job_id, ref_key, fingerprint, state, attempts, last_error, updated_at
		 FROM job_units
		 WHERE job_id = ?`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make(map[string]model.UnitRecord)
	for rows.Next() {
		var rec model.UnitRecord
		var state string
		if err := rows.Scan(
			&rec.JobID,
			&rec.RefKey,
			&rec.Fingerprint,
			&state,
			&rec.Attempts,
			&rec.LastError,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.State = model.UnitState(state)
		ret[rec.RefKey] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// PutTranslation inserts a cache entry. An existing entry under the same
// fingerprint is kept unchanged; the stored translation is returned so
// callers can detect a conflicting value.
func (s *SQLiteStore) PutTranslation(ctx context.Context, entry TranslationEntry) (TranslationEntry, bool, error) {
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO translation_cache (fingerprint, source_text, translated_text, source_lang, target_lang, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO NOTHING`,
		entry.Fingerprint,
		entry.SourceText,
		entry.TranslatedText,
		entry.SourceLang,
		entry.TargetLang,
		entry.Model,
		createdAt,
	)
	if err != nil {
		return TranslationEntry{}, false, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		entry.CreatedAt = createdAt
		return entry, true, nil
	}

	stored, ok, err := s.GetTranslation(ctx, entry.Fingerprint)
	if err != nil {
		return TranslationEntry{}, false, err
	}
	if !ok {
		return TranslationEntry{}, false, fmt.Errorf("cache entry %s vanished during insert", entry.Fingerprint)
	}
	return stored, false, nil
}

func (s *SQLiteStore) GetTranslation(ctx context.Context, fingerprint string) (TranslationEntry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT fingerprint, source_text, translated_text, source_lang, target_lang, model, created_at
		 FROM translation_cache
		 WHERE fingerprint = ?`,
		fingerprint,
	)
	var entry TranslationEntry
	if err := row.Scan(
		&entry.Fingerprint,
		&entry.SourceText,
		&entry.TranslatedText,
		&entry.SourceLang,
		&entry.TargetLang,
		&entry.Model,
		&entry.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return TranslationEntry{}, false, nil
		}
		return TranslationEntry{}, false, err
	}
	return entry, true, nil
}

// CacheSize reports the number of cached translations.
func (s *SQLiteStore) CacheSize(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translation_cache`).Scan(&n)
	return n, err
}
