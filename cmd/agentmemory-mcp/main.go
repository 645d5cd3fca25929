// Command agentmemory-mcp serves the agent memory tools over the Model
// Context Protocol on stdin/stdout.
//
// Startup sequence:
//  1. Load configuration (defaults, optional YAML file, AGENTMEMORY_* env vars).
//  2. Open the configured store and apply pending migrations.
//  3. Build the engine with the configured LLM provider, if any.
//  4. Serve JSON-RPC 2.0 requests from stdin until it closes or a signal arrives.
//
// All logging goes to stderr. Anything else on stdout corrupts the protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/agentmemory/internal/api/mcp"
	"github.com/scrypster/agentmemory/internal/bootstrap"
	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/notify"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "agentmemory-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.Logging, stderr)

	store, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	// The web server relays these to its websocket clients.
	writer := notify.NewWriter(cfg.Storage.DataPath, logger)
	svc, err := bootstrap.NewService(cfg, store, logger, engine.WithNotifier(writer.Notify))
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	srv := mcp.NewServer(svc, mcp.WithLogger(logger), mcp.WithVersion(version))
	logger.Info("agent memory MCP server ready", "storage", cfg.Storage.StorageEngine)

	err = mcp.NewStdioTransport(srv, stdin, stdout, logger).Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
