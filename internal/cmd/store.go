package cmd

import (
	"context"
	"fmt"

	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core/store"
)

// loadConfig resolves the layered configuration plus any runtime overrides.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	cfg, err := config.Load(ctx, overrides...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openConfiguredStore loads config and opens its store.
func openConfiguredStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return openStore(ctx, cfg.Store)
}
