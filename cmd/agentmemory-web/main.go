// Command agentmemory-web serves the agent memory HTTP API.
//
// Startup sequence:
//  1. Load configuration (defaults, optional YAML file, AGENTMEMORY_* env vars).
//  2. Open the configured store and apply pending migrations.
//  3. Build the engine with the configured LLM provider, if any.
//  4. Relay notification files written by the MCP server and admin CLI to /ws.
//  5. Serve the REST API and the /ws notification feed until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/agentmemory/internal/bootstrap"
	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/notify"
	"github.com/scrypster/agentmemory/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (overrides "+config.EnvConfigFile+")")
	flag.Parse()

	if *configPath != "" {
		_ = os.Setenv(config.EnvConfigFile, *configPath)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentmemory-web: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	store, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	hub := server.NewHub(cfg, logger)
	svc, err := bootstrap.NewService(cfg, store, logger, engine.WithNotifier(hub.Notify))
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	// Changes made by the MCP server and the admin CLI arrive as files.
	watcher := notify.NewWatcher(cfg.Storage.DataPath, hub.Notify, logger)
	if err := watcher.Start(); err != nil {
		logger.Warn("cross-process notifications disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, err := server.Start(ctx, cfg, svc, hub, logger)
	if err != nil {
		return err
	}
	logger.Info("agent memory API running", "url", "http://"+addr)

	<-ctx.Done()
	logger.Info("shutting down gracefully")
	time.Sleep(500 * time.Millisecond) // let the server drain
	return nil
}
