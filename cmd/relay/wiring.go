package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/relay/internal/agent"
	"github.com/rahul/relay/internal/app"
	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/governance"
	"github.com/rahul/relay/internal/observability"
	"github.com/rahul/relay/internal/plan"
	"github.com/rahul/relay/internal/store"
	"github.com/rahul/relay/internal/summarize"
	"github.com/rahul/relay/pkg/config"
)

// system holds everything built from a config for one process.
type system struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	events  *observability.EventLog
	metrics *observability.Metrics
	status  *observability.StatusTracker
	runner  *engine.Runner
	planner *agent.Planner
	service *app.Service

	closers []func(context.Context) error
}

func newModel(p config.ProviderConfig, model string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(p.APIKey),
		openai.WithModel(model),
	}
	if p.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.BaseURL))
	}
	return openai.New(opts...)
}

// catalogHandlers lists the handler ids plans are validated against when no
// model is configured.
func catalogHandlers() plan.HandlerSet {
	ids := make([]string, 0, len(agent.Catalog))
	for _, s := range agent.Catalog {
		ids = append(ids, s.ID)
	}
	return plan.NewHandlerSet(ids...)
}

func buildSystem(ctx context.Context, cfg *config.Config) (*system, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	s := &system{cfg: cfg, logger: logger}

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, errors.New("no enabled provider found in config")
	}
	switch pName {
	case "openai", "openrouter":
	default:
		return nil, fmt.Errorf("provider %s is not supported", pName)
	}
	llm, err := newModel(pCfg, pCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	// Summarizer
	var compressor summarize.Compressor
	if !cfg.Summarizer.Disabled {
		compressModel := llm
		if cfg.Summarizer.Model != "" {
			if compressModel, err = newModel(pCfg, cfg.Summarizer.Model); err != nil {
				return nil, fmt.Errorf("failed to create summarizer model: %w", err)
			}
		}
		compressor = summarize.NewLLMCompressor(compressModel)
	}
	summarizer := summarize.New(compressor,
		summarize.WithThreshold(cfg.Summarizer.Threshold),
		summarize.WithBudget(cfg.Summarizer.Budget),
		summarize.WithTimeout(cfg.Summarizer.Timeout.Duration),
		summarize.WithLogger(logger),
	)

	// Handlers
	if err := os.MkdirAll(cfg.App.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	prompts := agent.NewPromptManager(cfg.App.Prompts, logger)
	handlers := engine.NewRegistry(agent.NewHandlers(agent.Deps{
		Model:    llm,
		Tools:    agent.DefaultTools(cfg.App.Workspace, logger),
		Policy:   governance.NewDestructiveCommandPolicy(),
		Prompts:  prompts,
		Logger:   logger,
		MaxSteps: cfg.Engine.MaxSteps,
	}))

	// Audit and telemetry
	s.store, err = store.Open(cfg.Audit.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return s.store.Close() })

	s.events = observability.NewEventLog(cfg.Audit.EventsPath, cfg.Audit.MaxBytes, logger)
	s.metrics = observability.NewMetrics()
	s.status = observability.NewStatusTracker()

	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		Headers:     cfg.Tracing.Headers,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, shutdown)

	hooks := engine.MergeHooks(
		s.store.Hooks(),
		s.events.Hooks(),
		s.metrics.Hooks(),
		observability.NewTracing(nil).Hooks(),
		s.status.Hooks(),
	)

	s.runner = engine.NewRunner(handlers,
		engine.WithSummarizer(summarizer),
		engine.WithStepTimeout(cfg.Engine.StepTimeout.Duration),
		engine.WithMaxParallel(cfg.Engine.MaxParallel),
		engine.WithHooks(hooks),
		engine.WithLogger(logger),
	)
	s.planner = &agent.Planner{
		Model:    llm,
		Handlers: handlers,
		History:  s.store,
		Prompts:  prompts,
		Logger:   logger,
	}
	s.service = &app.Service{
		Planner: s.planner,
		Runner:  s.runner,
		History: s.store,
		Logger:  logger,
	}

	logger.Info("system ready",
		"provider", pName,
		"handlers", handlers.IDs(),
		"audit_db", cfg.Audit.DBPath,
		"events", s.events.String(),
	)
	return s, nil
}

// serveMetrics exposes /metrics until ctx is done. It is a no-op without an
// address.
func (s *system) serveMetrics(ctx context.Context) {
	if s.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	s.closers = append(s.closers, srv.Shutdown)
	s.logger.Info("serving metrics", "addr", s.cfg.Metrics.Addr)
}

// Close releases resources in reverse order of acquisition.
func (s *system) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.logger.Warn("shutdown error", "error", err)
		}
	}
}
