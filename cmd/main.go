package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/MimeLyc/contextual-epub-translator/internal/cache"
	"github.com/MimeLyc/contextual-epub-translator/internal/config"
	"github.com/MimeLyc/contextual-epub-translator/internal/jobs"
	"github.com/MimeLyc/contextual-epub-translator/internal/library"
	"github.com/MimeLyc/contextual-epub-translator/internal/llm"
	"github.com/MimeLyc/contextual-epub-translator/internal/persistence"
	"github.com/MimeLyc/contextual-epub-translator/internal/segment"
	"github.com/MimeLyc/contextual-epub-translator/internal/service"
	"github.com/MimeLyc/contextual-epub-translator/internal/translator"
	"github.com/MimeLyc/contextual-epub-translator/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.LogLevel))

	if cfg.Watch.Dir == "" {
		log.Fatal("WATCH_DIR is required")
	}

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open store: %v", err)
	}
	defer store.Close()
	if n, err := store.CacheSize(context.Background()); err == nil {
		log.Info("Translation cache holds %d entries", n)
	}

	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RateLimit:   float64(cfg.LLM.RateLimit),
	})
	if err != nil {
		log.Fatal("Failed to create LLM client: %v", err)
	}

	orch := jobs.NewOrchestrator(
		translator.NewLLMTranslator(client),
		cache.New(store),
		store,
		jobs.Options{
			Workers:     cfg.Translate.Workers,
			MaxAttempts: cfg.Translate.MaxAttempts,
			BackoffBase: cfg.Translate.BackoffBase,
			BackoffCap:  cfg.Translate.BackoffCap,
		},
	)
	pipeline := service.NewPipeline(orch, segment.Config{
		MaxUnitSize:   cfg.Segment.MaxUnitSize,
		ContextWindow: cfg.Segment.ContextWindow,
	}, cfg.Segment.StripRuby)
	manager := jobs.NewManager(store, pipeline.Execute)

	if err := manager.Resume(context.Background()); err != nil {
		log.Error("Failed to resume persisted jobs: %v", err)
	}

	sourceLang := ""
	if cfg.Translate.SourceLanguage != language.Und {
		sourceLang = cfg.Translate.SourceLanguage.String()
	}
	scanner := library.NewScanner(cfg.Watch.Dir, cfg.Storage.OutputDir, cfg.Translate.TargetLanguage)
	watcher, err := service.NewWatcher(
		cfg.Watch.CronExpr,
		scanner,
		manager,
		sourceLang,
		cfg.Translate.TargetLanguage.String(),
		cfg.LLM.Model,
	)
	if err != nil {
		log.Fatal("Failed to create watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		log.Fatal("Failed to start watcher: %v", err)
	}
	log.Info("Watching %s on schedule %q", cfg.Watch.Dir, cfg.Watch.CronExpr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	watcher.Stop()
}
