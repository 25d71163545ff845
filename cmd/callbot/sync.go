package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/callbot/internal/adapters/storage"
	"github.com/alejandrodnm/callbot/internal/application/catalog"
)

// runLoadCoins da de alta las monedas del feed que no existen todavía.
func runLoadCoins(ctx context.Context, store *storage.SQLiteStorage, cat *catalog.Catalog, count int) error {
	start := time.Now()
	before, err := store.CountCoins(ctx)
	if err != nil {
		return fmt.Errorf("load coins: %w", err)
	}

	inserted, err := cat.BulkSync(ctx, count)
	if err != nil {
		return fmt.Errorf("load coins: %w", err)
	}

	slog.Info("coins loaded",
		"before", before,
		"inserted", inserted,
		"limit", count,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// runReset borra todas las tablas, las recrea y carga el catálogo completo.
func runReset(ctx context.Context, store *storage.SQLiteStorage, cat *catalog.Catalog) error {
	slog.Warn("=== RESET: dropping all coins and calls ===")
	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return runLoadCoins(ctx, store, cat, 0)
}
