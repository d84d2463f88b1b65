package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_RATE_LIMIT: Max backend requests per second (default: 2)
//
// Translation Configuration:
// - TRANSLATE_SOURCE_LANGUAGE: BCP 47 tag; empty means auto-detect
// - TRANSLATE_TARGET_LANGUAGE: BCP 47 tag (default: zh-Hant)
// - TRANSLATE_WORKERS: Concurrent in-flight units (default: 4)
// - TRANSLATE_MAX_ATTEMPTS: Attempts per unit before degrading (default: 5)
// - TRANSLATE_BACKOFF_BASE_MS: Initial retry backoff (default: 500)
// - TRANSLATE_BACKOFF_CAP_MS: Maximum retry backoff (default: 30000)
//
// Segmentation Configuration:
// - SEGMENT_MAX_UNIT_SIZE: Max unit size in runes (default: 2000)
// - SEGMENT_CONTEXT_WINDOW: Context runes carried per unit (default: 200)
// - SEGMENT_STRIP_RUBY: Drop ruby annotations before translation (default: true)
//
// Storage / Scheduling:
// - DB_PATH: SQLite database path (default: data/translator.db)
// - WATCH_DIR: Directory scanned for untranslated EPUBs (optional)
// - OUTPUT_DIR: Directory for translated EPUBs (default: alongside input)
// - CRON_EXPR: Watch schedule, six fields with seconds (default: "0 0 0 * * *")
// - LOG_LEVEL: debug|info|warn|error (default: info)

type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Translate TranslateConfig `json:"translate"`
	Segment   SegmentConfig   `json:"segment"`
	Storage   StorageConfig   `json:"storage"`
	Watch     WatchConfig     `json:"watch"`
	LogLevel  string          `json:"log_level"`
}

// LLMConfig holds the configuration for the LLM client.
// Supports any OpenAI-compatible provider.
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	RateLimit   int     `json:"rate_limit"`
}

// TranslateConfig holds per-job translation parameters.
type TranslateConfig struct {
	SourceLanguage language.Tag `json:"source_language"`
	TargetLanguage language.Tag `json:"target_language"`
	Workers        int          `json:"workers"`
	MaxAttempts    int          `json:"max_attempts"`
	BackoffBase    time.Duration `json:"backoff_base"`
	BackoffCap     time.Duration `json:"backoff_cap"`
}

// SegmentConfig holds segmenter parameters.
type SegmentConfig struct {
	MaxUnitSize   int  `json:"max_unit_size"`
	ContextWindow int  `json:"context_window"`
	StripRuby     bool `json:"strip_ruby"`
}

// StorageConfig holds persistence paths.
type StorageConfig struct {
	DBPath    string `json:"db_path"`
	OutputDir string `json:"output_dir"`
}

// WatchConfig holds the watch-folder scheduling configuration.
type WatchConfig struct {
	Dir      string `json:"dir"`
	CronExpr string `json:"cron_expr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			RateLimit:   getEnvInt("LLM_RATE_LIMIT", 2),
		},
		Translate: TranslateConfig{
			SourceLanguage: parseLanguage(getEnvString("TRANSLATE_SOURCE_LANGUAGE", "")),
			TargetLanguage: parseLanguage(getEnvString("TRANSLATE_TARGET_LANGUAGE", "zh-Hant")),
			Workers:        getEnvInt("TRANSLATE_WORKERS", 4),
			MaxAttempts:    getEnvInt("TRANSLATE_MAX_ATTEMPTS", 5),
			BackoffBase:    time.Duration(getEnvInt("TRANSLATE_BACKOFF_BASE_MS", 500)) * time.Millisecond,
			BackoffCap:     time.Duration(getEnvInt("TRANSLATE_BACKOFF_CAP_MS", 30000)) * time.Millisecond,
		},
		Segment: SegmentConfig{
			MaxUnitSize:   getEnvInt("SEGMENT_MAX_UNIT_SIZE", 2000),
			ContextWindow: getEnvInt("SEGMENT_CONTEXT_WINDOW", 200),
			StripRuby:     getEnvBool("SEGMENT_STRIP_RUBY", true),
		},
		Storage: StorageConfig{
			DBPath:    getEnvString("DB_PATH", "data/translator.db"),
			OutputDir: getEnvString("OUTPUT_DIR", ""),
		},
		Watch: WatchConfig{
			Dir:      getEnvString("WATCH_DIR", ""),
			CronExpr: getEnvString("CRON_EXPR", "0 0 0 * * *"),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Translate.TargetLanguage == language.Und {
		return fmt.Errorf("TRANSLATE_TARGET_LANGUAGE is invalid")
	}
	if c.Translate.Workers <= 0 {
		return fmt.Errorf("TRANSLATE_WORKERS must be positive")
	}
	return nil
}

// parseLanguage parses a BCP 47 tag, returning Und for empty or bad input.
func parseLanguage(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
