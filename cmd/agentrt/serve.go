package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kairoai/agentrt/internal/agentloop"
	"github.com/kairoai/agentrt/internal/config"
	"github.com/kairoai/agentrt/internal/httpapi"
	"github.com/kairoai/agentrt/internal/interceptor"
	"github.com/kairoai/agentrt/internal/jobstore"
	"github.com/kairoai/agentrt/internal/llmclient"
	"github.com/kairoai/agentrt/internal/maintenance"
	"github.com/kairoai/agentrt/internal/observability"
	"github.com/kairoai/agentrt/internal/orchestrator"
	"github.com/kairoai/agentrt/internal/sessionstore"
	"github.com/kairoai/agentrt/internal/stopsignal"
	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/internal/tools"
	"github.com/kairoai/agentrt/internal/usermemory"
)

// defaultSystemPrompt is used when no system prompt file is configured or
// the configured file does not exist yet.
const defaultSystemPrompt = `You are a capable assistant with access to tools.
Use tools when they help answer the question; otherwise answer directly.`

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := "info"
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level})
	metrics := observability.NewMetrics()

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	// Startup hook: the stop flag is cleared exactly once.
	stopFlag := stopsignal.New(filepath.Join(dataDir, "STOP"))
	if err := stopFlag.Clear(); err != nil {
		return fmt.Errorf("clear stop flag: %w", err)
	}

	sessions, err := sessionstore.Open(filepath.Join(dataDir, "app.db"), filepath.Join(dataDir, "sessions"))
	if err != nil {
		return err
	}
	defer sessions.Close()

	jobs, err := jobstore.Open(filepath.Join(dataDir, "jobs"))
	if err != nil {
		return err
	}

	memoryStore := usermemory.New(filepath.Join(dataDir, "memory"))

	backend := llmclient.New(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	promptLog := interceptor.NewLogger(cfg.Logging.PromptsLogPath, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	model := interceptor.New(backend, promptLog).WithMetrics(metrics)

	registry := buildRegistry(cfg, dataDir, model, memoryStore)
	dispatcher := toolkit.NewDispatcher(registry, cfg.Tools.ResultBudgetChars, filepath.Join(dataDir, "tool_results"))

	basePrompt := loadSystemPrompt(cfg.Agent.SystemPromptFile)
	loop := agentloop.New(model, registry, dispatcher, stopFlag, nil, basePrompt).WithMetrics(metrics)

	orch := orchestrator.New(
		sessions,
		loop,
		filepath.Join(dataDir, "uploads"),
		registry.AllNames(),
		cfg.Backend.DefaultModel,
		cfg.Backend.DefaultTemperature,
	)

	runner := jobstore.NewRunner(jobs, sessions, loop).WithMetrics(metrics)

	sweeper := maintenance.New(
		sessions,
		jobs,
		filepath.Join(dataDir, "tool_results"),
		time.Duration(cfg.Session.GCAgeDays)*24*time.Hour,
		time.Duration(cfg.Jobs.GCAgeDays)*24*time.Hour,
		logger,
	)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	api := httpapi.New(httpapi.Config{
		Orchestrator: orch,
		Sessions:     sessions,
		Jobs:         jobs,
		Runner:       runner,
		Backend:      backend,
		Stop:         stopFlag,
		Metrics:      metrics,
		Logger:       logger,
		ReloadPrompt: func() error {
			data, err := os.ReadFile(cfg.Agent.SystemPromptFile)
			if err != nil {
				return err
			}
			loop.ReloadPrompt(string(data))
			return nil
		},
		Tokens:          cfg.Auth.Tokens,
		OptionalAuth:    cfg.Auth.OptionalAuth,
		CORSOrigins:     cfg.Server.CORSOrigins,
		CORSCredentials: cfg.Server.CORSCredentials,
		UploadMaxBytes:  cfg.Server.UploadMaxBytes,
		DefaultModel:    cfg.Backend.DefaultModel,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "backend", cfg.Backend.BaseURL)
		errCh <- server.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildRegistry registers the eight tools in their canonical order — the
// order is part of the backend prefix-cache key, so it is fixed here and
// nowhere else.
func buildRegistry(cfg *config.Config, dataDir string, model tools.CodeModel, memoryStore *usermemory.Store) *toolkit.Registry {
	registry := toolkit.NewRegistry()

	var searchProvider tools.WebSearchProvider
	if cfg.Tools.WebSearchAPIKey != "" {
		searchProvider = tools.NewHTTPSearchProvider("https://api.tavily.com/search", cfg.Tools.WebSearchAPIKey)
	}

	scratchRoot := cfg.Tools.WorkspaceRoot
	if scratchRoot == "" {
		scratchRoot = filepath.Join(dataDir, "scratch")
	}

	codegen := tools.NewLLMCodeGenerator(model, cfg.Backend.DefaultModel)

	registry.Register(tools.NewWebSearchTool(searchProvider))
	registry.Register(tools.NewPythonCoderTool(codegen, scratchRoot, cfg.Tools.DefaultTimeout[config.ToolPythonCoder]))
	registry.Register(tools.NewRAGTool(nil))
	registry.Register(tools.NewFileReaderTool(scratchRoot))
	registry.Register(tools.NewFileWriterTool(scratchRoot))
	registry.Register(tools.NewFileNavigatorTool(scratchRoot))
	registry.Register(tools.NewShellExecTool(cfg.Tools.DefaultTimeout[config.ToolShellExec]))
	registry.Register(tools.NewMemoryTool(memoryStore))

	return registry
}

func loadSystemPrompt(path string) string {
	if path == "" {
		return defaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultSystemPrompt
	}
	return string(data)
}
