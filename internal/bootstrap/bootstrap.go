// Package bootstrap wires configuration into a running store and engine. The
// web service and the admin CLI share it so both see the same database and
// the same classifier strategies.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/llm"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/internal/storage/postgres"
	"github.com/scrypster/agentmemory/internal/storage/sqlite"
)

// OpenStore opens the configured storage engine and applies pending
// migrations.
func OpenStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "", "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path := cfg.SQLitePath()
		logger.Info("opening sqlite store", "path", path)
		return sqlite.NewEventStore(path, sqlite.WithLogger(logger))
	case "postgres":
		logger.Info("opening postgres store")
		return postgres.NewEventStore(cfg.Storage.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage engine: %q", cfg.Storage.StorageEngine)
	}
}

// NewService builds the engine over store with the configured LLM provider.
// Extra options are applied last and win over the configured ones.
func NewService(cfg *config.Config, store storage.Store, logger *slog.Logger, opts ...engine.Option) (*engine.Service, error) {
	text, err := llm.NewTextGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	if text != nil {
		logger.Info("llm provider configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	base := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTextGenerator(text),
		engine.WithEmbeddingGenerator(embedder),
	}
	return engine.New(store, engine.ConfigFrom(cfg.Memory), append(base, opts...)...)
}
