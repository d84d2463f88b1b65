package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewFromEnvDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.APIURL)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.RateLimit)
	assert.Equal(t, language.MustParse("zh-Hant"), cfg.Translate.TargetLanguage)
	assert.Equal(t, language.Und, cfg.Translate.SourceLanguage)
	assert.Equal(t, 4, cfg.Translate.Workers)
	assert.Equal(t, 5, cfg.Translate.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Translate.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Translate.BackoffCap)
	assert.Equal(t, 2000, cfg.Segment.MaxUnitSize)
	assert.Equal(t, 200, cfg.Segment.ContextWindow)
	assert.True(t, cfg.Segment.StripRuby)
	assert.Equal(t, "data/translator.db", cfg.Storage.DBPath)
	assert.Equal(t, "0 0 0 * * *", cfg.Watch.CronExpr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestNewFromEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("TRANSLATE_SOURCE_LANGUAGE", "ja")
	t.Setenv("TRANSLATE_TARGET_LANGUAGE", "ko")
	t.Setenv("TRANSLATE_WORKERS", "8")
	t.Setenv("SEGMENT_STRIP_RUBY", "false")
	t.Setenv("DB_PATH", "/var/lib/translator.db")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, language.MustParse("ja"), cfg.Translate.SourceLanguage)
	assert.Equal(t, language.MustParse("ko"), cfg.Translate.TargetLanguage)
	assert.Equal(t, 8, cfg.Translate.Workers)
	assert.False(t, cfg.Segment.StripRuby)
	assert.Equal(t, "/var/lib/translator.db", cfg.Storage.DBPath)
}

func TestNewFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	_, err := NewFromEnv()
	assert.Error(t, err)
}

func TestNewFromEnvBadTargetLanguage(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("TRANSLATE_TARGET_LANGUAGE", "not a language")
	_, err := NewFromEnv()
	assert.Error(t, err)
}

func TestOptionsOverrideEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv(func(c *Config) {
		c.Translate.Workers = 16
	})
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Translate.Workers)
}
