package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/executors"
	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/internal/schedule"
	"github.com/rendis/stepflow/internal/store"
)

func main() {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("stepflow exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}
	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()

	registry := executors.NewRegistry()
	if err := registry.Register(executors.NewDelayExecutor()); err != nil {
		return err
	}
	if err := registry.Register(executors.NewScriptExecutor(exprEngine)); err != nil {
		return err
	}
	if err := registry.Register(executors.NewHTTPRequestExecutor(executors.HTTPConfig{}, jqEngine)); err != nil {
		return err
	}
	if cfg.AgentEndpoint != "" {
		client := executors.NewHTTPAgentClient(cfg.AgentEndpoint, 60*time.Second)
		if err := registry.Register(executors.NewAgentCallExecutor(client)); err != nil {
			return err
		}
	} else {
		logger.Warn("no agent endpoint configured, agent_call steps will fail")
	}
	if cfg.ToolCommand != "" {
		toolClient := executors.NewMCPToolClient(cfg.ToolCommand, cfg.ToolArgs...)
		defer toolClient.Close()
		if err := registry.Register(executors.NewToolCallExecutor(toolClient)); err != nil {
			return err
		}
	} else {
		logger.Warn("no tool command configured, tool_call steps will fail")
	}

	scheduler := engine.NewScheduler(registry, celEngine, st, logger, engine.SchedulerConfig{PoolSize: cfg.PoolSize})
	defer scheduler.Shutdown()

	coordinator, err := engine.NewCoordinator(st, scheduler, logger)
	if err != nil {
		return err
	}

	cron := schedule.NewScheduler(st, coordinator, logger)
	if err := cron.RecoverMissed(ctx); err != nil {
		logger.Warn("recover missed jobs failed", slog.String("error", err.Error()))
	}
	if err := cron.Start(ctx); err != nil {
		return err
	}

	logger.Info("stepflow started",
		slog.String("db_path", cfg.DBPath),
		slog.Int("pool_size", cfg.PoolSize),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))

	_ = cron.Stop()
	coordinator.CancelAll()
	coordinator.Wait()

	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
