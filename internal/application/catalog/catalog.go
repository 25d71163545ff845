// Package catalog guarda las monedas conocidas y resuelve texto libre contra ellas.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/alejandrodnm/callbot/internal/ports"
)

// Catalog implementa el resolver y la sincronización con el feed externo.
type Catalog struct {
	store    ports.Storage
	provider ports.TickerProvider
	feed     ports.SnapshotSource
}

// New crea el catálogo. feed se usa para BulkSync; provider para altas individuales.
func New(store ports.Storage, provider ports.TickerProvider, feed ports.SnapshotSource) *Catalog {
	return &Catalog{store: store, provider: provider, feed: feed}
}

// resolverStep es un paso del resolver: sólo se pasa al siguiente si éste no devuelve nada.
type resolverStep struct {
	step  domain.MatchStep
	query func(ctx context.Context, q string) ([]domain.Coin, error)
}

// Find resuelve query por símbolo exacto, luego prefijo de símbolo y por
// último nombre o catalog id. Devuelve todas las coincidencias del primer
// paso que encuentre algo.
func (c *Catalog) Find(ctx context.Context, query string) (domain.Match, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return domain.NewMatch(query, domain.StepNone, nil), nil
	}

	steps := []resolverStep{
		{domain.StepExactSymbol, c.store.CoinsBySymbol},
		{domain.StepSymbolPrefix, c.store.CoinsBySymbolPrefix},
		{domain.StepNameOrID, c.store.CoinsByNameOrCatalogID},
	}
	for _, s := range steps {
		coins, err := s.query(ctx, q)
		if err != nil {
			return domain.Match{}, fmt.Errorf("catalog.Find %q: %w", q, err)
		}
		if len(coins) > 0 {
			m := domain.NewMatch(q, s.step, coins)
			slog.Debug("coin resolved", "query", q, "kind", m.Kind, "step", s.step, "matches", len(coins))
			return m, nil
		}
	}
	return domain.NewMatch(q, domain.StepNone, nil), nil
}

// Resolve es Find y, si no hay coincidencias, intenta dar de alta la moneda
// desde el feed externo. Si el feed no la conoce se mantiene el NoMatch.
func (c *Catalog) Resolve(ctx context.Context, query string) (domain.Match, error) {
	m, err := c.Find(ctx, query)
	if err != nil || m.Kind != domain.MatchNone || m.Query == "" {
		return m, err
	}

	coin, err := c.GetOrCreate(ctx, m.Query)
	if err != nil {
		slog.Debug("coin not found upstream", "query", m.Query, "err", err)
		return m, nil
	}
	return domain.NewMatch(m.Query, domain.StepUpstream, []domain.Coin{coin}), nil
}

// GetOrCreate busca por nombre exacto y por catalog id; si no existe la
// descarga del feed y la crea. Falla con ErrUpstreamUnavailable (o
// ErrUpstreamTimeout) si el feed no la devuelve.
func (c *Catalog) GetOrCreate(ctx context.Context, nameOrID string) (domain.Coin, error) {
	key := strings.TrimSpace(nameOrID)
	if key == "" {
		return domain.Coin{}, fmt.Errorf("catalog.GetOrCreate: empty name: %w", domain.ErrNoMatch)
	}

	if coin, ok, err := c.store.CoinByName(ctx, key); err != nil || ok {
		return coin, wrapOp("catalog.GetOrCreate", key, err)
	}
	catalogID := strings.ToLower(key)
	if coin, ok, err := c.store.CoinByCatalogID(ctx, catalogID); err != nil || ok {
		return coin, wrapOp("catalog.GetOrCreate", key, err)
	}

	// la descarga va fuera de la transacción: no retenemos la conexión durante I/O de red
	tk, err := c.provider.FetchCoin(ctx, catalogID)
	if err != nil {
		return domain.Coin{}, fmt.Errorf("catalog.GetOrCreate %q: %w", key, err)
	}
	if tk.CatalogID == "" {
		tk.CatalogID = catalogID
	}

	var coin domain.Coin
	err = c.store.InTx(ctx, func(tx ports.Tx) error {
		existing, ok, err := tx.CoinByCatalogID(ctx, tk.CatalogID)
		if err != nil {
			return err
		}
		if ok {
			coin = existing
			return nil
		}
		coin, err = tx.InsertCoin(ctx, tk.Coin())
		return err
	})
	if err != nil {
		return domain.Coin{}, fmt.Errorf("catalog.GetOrCreate %q: %w", key, err)
	}

	slog.Info("coin created", "coin_id", coin.ID, "catalog_id", coin.CatalogID, "symbol", coin.Symbol)
	return coin, nil
}

// BulkSync da de alta las monedas del feed que todavía no existen por
// catalog id. Las existentes no se actualizan. limit 0 = todas.
func (c *Catalog) BulkSync(ctx context.Context, limit int) (int, error) {
	snap, err := c.feed.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog.BulkSync: %w", err)
	}

	tickers := snap.Tickers
	if limit > 0 && limit < len(tickers) {
		tickers = tickers[:limit]
	}

	inserted := 0
	err = c.store.InTx(ctx, func(tx ports.Tx) error {
		for _, tk := range tickers {
			if tk.CatalogID == "" {
				continue
			}
			_, ok, err := tx.CoinByCatalogID(ctx, tk.CatalogID)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if _, err := tx.InsertCoin(ctx, tk.Coin()); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("catalog.BulkSync: %w", err)
	}

	slog.Info("catalog synced", "feed", len(tickers), "inserted", inserted)
	return inserted, nil
}

func wrapOp(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}
