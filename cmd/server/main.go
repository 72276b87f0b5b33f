package main

// Package main is the entry point for the plantops-ai server.
//
// Startup sequence:
//   1. Load configuration (YAML file + PLANTOPS_* environment overrides)
//   2. Build the structured logger and the append-only audit trail
//   3. Open the SQLite history store and train the model registry from
//      the labeled observations it holds; too little data leaves the
//      heuristic fallbacks carrying all scoring
//   4. Wire the pipeline: snapshot builder → rule engine → prediction
//      scorer → reasoning engine (with the configured LLM provider, or
//      rule-engine-only mode when none is configured)
//   5. Serve the HTTP API and WebSocket run streams
//
// Shutdown on SIGINT/SIGTERM is graceful: the listener drains, the
// audit log flushes, and the history store closes. Runs still executing
// finish against their own detached contexts.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/plantops/plantops-ai/internal/audit"
	"github.com/plantops/plantops-ai/internal/config"
	"github.com/plantops/plantops-ai/internal/decisionlog"
	"github.com/plantops/plantops-ai/internal/history"
	"github.com/plantops/plantops-ai/internal/llm/adapter"
	"github.com/plantops/plantops-ai/internal/predict"
	"github.com/plantops/plantops-ai/internal/reasoning/engine"
	"github.com/plantops/plantops-ai/internal/reasoning/prompt"
	"github.com/plantops/plantops-ai/internal/rules"
	"github.com/plantops/plantops-ai/internal/server"
	"github.com/plantops/plantops-ai/internal/snapshot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plantops-ai: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	configPath := os.Getenv("PLANTOPS_CONFIG")
	if configPath == "" {
		configPath = "/etc/plantops/config.yaml"
	}
	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	cfg := mgr.Get(ctx)

	logger, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Audit.LogPath,
		AppLogPath:   cfg.Audit.LogPath + ".app",
		MaxSize:      cfg.Audit.MaxSizeMB,
		MaxBackups:   cfg.Audit.MaxBackups,
		MaxAge:       cfg.Audit.MaxAgeDays,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	store, err := history.NewSQLiteStore(cfg.History.SQLitePath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	registry, err := predict.Train(ctx, store, logger)
	if err != nil {
		logger.Warn("model training unavailable, scoring falls back to heuristics", zap.Error(err))
		registry = predict.EmptyRegistry()
	}

	llm, err := adapter.NewLLMAdapter(llmConfig(cfg))
	if err != nil {
		return fmt.Errorf("configure llm provider: %w", err)
	}
	if !llm.Configured() {
		logger.Warn("no LLM provider configured, runs will use rule-engine-only analysis")
	}

	eng := engine.NewEngine(engine.Deps{
		Builder:     snapshot.NewBuilder(),
		Rules:       rules.NewEngine(cfg.Rules),
		Scorer:      predict.NewScorer(),
		Models:      registry,
		Prompts:     prompt.NewManager(),
		LLM:         llm,
		DecisionLog: decisionlog.NewBuilder(),
		History:     store,
		Audit:       auditLog,
		Logger:      logger,
	}, engine.Options{
		StageTimeout: time.Duration(cfg.Orchestrator.StageTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.Orchestrator.MaxRetries,
		BackoffBase:  time.Duration(cfg.Orchestrator.BackoffBaseMillis) * time.Millisecond,
	})

	srv, err := server.NewServer(cfg, server.Deps{
		Engine:  eng,
		History: store,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	logger.Info("plantops-ai started",
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Int("training_samples", registry.Samples),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}

// llmConfig extracts the active provider's settings. An empty provider
// yields an unconfigured adapter and the engine degrades to
// rule-engine-only analysis.
func llmConfig(cfg *config.Config) *adapter.Config {
	var settings map[string]interface{}
	switch cfg.LLM.Provider {
	case "anthropic":
		settings = cfg.LLM.Anthropic
	case "openai":
		settings = cfg.LLM.OpenAI
	case "ollama":
		settings = cfg.LLM.Ollama
	}
	str := func(key string) string {
		if v, ok := settings[key].(string); ok {
			return v
		}
		return ""
	}
	return &adapter.Config{
		Provider: adapter.ProviderType(cfg.LLM.Provider),
		APIKey:   str("api_key"),
		Model:    str("model"),
		BaseURL:  str("base_url"),
	}
}

func buildLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if format == "text" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
