// Package store selects the report storage backend from configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/demandcast/cmd/forecaster/config"
	"github.com/HatiCode/demandcast/pkg/storage"
)

// New creates the configured report store. Stores that hold connections
// implement io.Closer and should be closed on shutdown.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Storage {
	case "memory":
		logger.Info("using in-memory report storage", "history", cfg.ReportHistory, "ttl", cfg.ReportTTL)
		if cfg.ReportTTL > 0 {
			return storage.NewMemoryStoreWithTTL(cfg.ReportHistory, cfg.ReportTTL, cfg.ReportTTL/10+1), nil
		}
		return storage.NewMemoryStore(cfg.ReportHistory), nil

	case "redis":
		logger.Info("using Redis report storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL, cfg.ReportHistory)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return s, nil

	case "postgres":
		logger.Info("using PostgreSQL report storage")
		s, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("invalid storage backend %q", cfg.Storage)
	}
}
