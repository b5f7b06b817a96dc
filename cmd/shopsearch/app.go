package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/config"
	"github.com/hession/shopsearch/internal/history"
	"github.com/hession/shopsearch/internal/llm"
	"github.com/hession/shopsearch/internal/logger"
	"github.com/hession/shopsearch/internal/metrics"
	"github.com/hession/shopsearch/internal/query"
	"github.com/hession/shopsearch/internal/scraper"
	"github.com/hession/shopsearch/internal/search"
	"github.com/hession/shopsearch/internal/summary"
	"go.uber.org/zap"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	catalog *catalog.Store
	loader  *catalog.Loader
	history history.Store

	closers []io.Closer
}

// newApp loads configuration, starts logging and opens the history store.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		LogDir:     config.LogDir(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: cfg.Log.Console,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.L()

	store := catalog.NewStore()
	a := &app{
		cfg:     cfg,
		log:     log,
		catalog: store,
		loader:  catalog.NewLoader(cfg.Catalog.Source, store, seconds(cfg.Catalog.TimeoutSeconds), log),
	}

	if cfg.History.Enabled {
		hist, err := history.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		a.history = hist
		a.closers = append(a.closers, hist)
	}

	if !cfg.IsAPIKeyConfigured() {
		log.Warn("no model API key configured, set API_KEY or add it to the .secrets file",
			zap.String("provider", cfg.Model.Provider))
	}
	log.Debug("configuration loaded",
		zap.String("provider", cfg.Model.Provider),
		zap.String("model", cfg.Model.Model),
		zap.String("catalog", cfg.Catalog.Source),
		zap.String("scraper", cfg.Scraper.BaseURL),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("history", cfg.History.Enabled),
	)
	return a, nil
}

// orchestrator wires the model, cache, scraper and summarizer into a
// search session.
func (a *app) orchestrator(ctx context.Context, opts ...search.Option) (*search.Orchestrator, error) {
	prompts, err := config.LoadPromptConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	obs := metrics.NewObserver()
	gen, err := llm.New(ctx, a.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}
	gen = llm.Instrument(gen, obs)

	interp, err := query.NewLLMInterpreter(gen, prompts.GetInterpretPrompt(), a.log)
	if err != nil {
		return nil, err
	}
	cache, err := query.NewCache(a.cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query cache: %w", err)
	}
	if c, ok := cache.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	interpreter := query.NewCachingInterpreter(interp, cache, obs, a.log)

	summarizer, err := summary.New(gen, prompts.GetSummarizePrompt(), a.log)
	if err != nil {
		return nil, err
	}

	fetcher := scraper.NewClient(a.cfg.Scraper.BaseURL, seconds(a.cfg.Scraper.TimeoutSeconds))

	all := []search.Option{search.WithLogger(a.log), search.WithObserver(obs)}
	if a.history != nil {
		all = append(all, search.WithRecorder(a.history))
	}
	all = append(all, opts...)
	return search.New(a.catalog, interpreter, fetcher, summarizer, all...), nil
}

// loadCatalog loads the catalog synchronously. A failure leaves an empty
// catalog and a warning in place.
func (a *app) loadCatalog(ctx context.Context) {
	_ = a.loader.Load(ctx)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("failed to close resource", zap.Error(err))
		}
	}
	_ = logger.Close()
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
