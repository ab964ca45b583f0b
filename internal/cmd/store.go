package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/observability"
)

// openStore loads config and opens the run store it names. Used by the
// commands that only read or reset persisted state.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openConfiguredStore(ctx, cfg.Store)
}

// openConfiguredStore opens the run store and applies the schema, which is
// idempotent, so every command can call it.
func openConfiguredStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", storeLabel(cfg), err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger := observability.CLILogger; logger != nil {
		logger.Debug("Run store ready", zap.String("driver", db.Driver()), zap.String("location", storeLabel(cfg)))
	}
	return db, nil
}

// storeLabel names the store without credentials: the path for local files,
// otherwise only the driver.
func storeLabel(cfg config.StoreConfig) string {
	if cfg.URL == "" && cfg.Path != "" {
		return cfg.Path
	}
	if cfg.Driver != "" {
		return cfg.Driver
	}
	return "libsql"
}
