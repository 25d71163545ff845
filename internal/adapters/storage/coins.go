package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alejandrodnm/callbot/internal/domain"
)

const coinColumns = `id, name, symbol, COALESCE(cmc_id, '')`

// CoinByName busca por nombre exacto.
func (r *repo) CoinByName(ctx context.Context, name string) (domain.Coin, bool, error) {
	return r.coinWhere(ctx, "CoinByName", `name = ?`, name)
}

// CoinByCatalogID busca por id externo exacto.
func (r *repo) CoinByCatalogID(ctx context.Context, catalogID string) (domain.Coin, bool, error) {
	return r.coinWhere(ctx, "CoinByCatalogID", `cmc_id = ?`, catalogID)
}

// CoinsBySymbol: símbolo exacto sin distinguir mayúsculas.
func (r *repo) CoinsBySymbol(ctx context.Context, symbol string) ([]domain.Coin, error) {
	return r.coinsWhere(ctx, "CoinsBySymbol", `lower(symbol) = lower(?)`, symbol)
}

// CoinsBySymbolPrefix: el texto es prefijo del símbolo.
func (r *repo) CoinsBySymbolPrefix(ctx context.Context, prefix string) ([]domain.Coin, error) {
	return r.coinsWhere(ctx, "CoinsBySymbolPrefix",
		`lower(symbol) LIKE lower(?) ESCAPE '\'`, escapeLike(prefix)+"%")
}

// CoinsByNameOrCatalogID: el texto aparece en el nombre o en el id externo.
func (r *repo) CoinsByNameOrCatalogID(ctx context.Context, fragment string) ([]domain.Coin, error) {
	pattern := "%" + escapeLike(fragment) + "%"
	return r.coinsWhere(ctx, "CoinsByNameOrCatalogID",
		`lower(name) LIKE lower(?) ESCAPE '\' OR lower(cmc_id) LIKE lower(?) ESCAPE '\'`,
		pattern, pattern)
}

// InsertCoin crea la moneda y devuelve su ID interno.
func (r *repo) InsertCoin(ctx context.Context, coin domain.Coin) (domain.Coin, error) {
	var cmcID any
	if coin.CatalogID != "" {
		cmcID = coin.CatalogID
	}
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO coins (name, symbol, cmc_id) VALUES (?, ?, ?)`,
		coin.Name, coin.Symbol, cmcID,
	)
	if err != nil {
		return domain.Coin{}, fmt.Errorf("storage.InsertCoin %q: %w", coin.CatalogID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Coin{}, fmt.Errorf("storage.InsertCoin: last id: %w", err)
	}
	coin.ID = id
	return coin, nil
}

// CountCoins devuelve el tamaño del catálogo.
func (r *repo) CountCoins(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM coins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.CountCoins: %w", err)
	}
	return n, nil
}

// --- helpers internos ---

func (r *repo) coinWhere(ctx context.Context, op, where string, args ...any) (domain.Coin, bool, error) {
	var c domain.Coin
	err := r.q.QueryRowContext(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE `+where+` ORDER BY id LIMIT 1`, args...,
	).Scan(&c.ID, &c.Name, &c.Symbol, &c.CatalogID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coin{}, false, nil
	}
	if err != nil {
		return domain.Coin{}, false, fmt.Errorf("storage.%s: %w", op, err)
	}
	return c, true, nil
}

func (r *repo) coinsWhere(ctx context.Context, op, where string, args ...any) ([]domain.Coin, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.%s: query: %w", op, err)
	}
	defer rows.Close()

	var coins []domain.Coin
	for rows.Next() {
		var c domain.Coin
		if err := rows.Scan(&c.ID, &c.Name, &c.Symbol, &c.CatalogID); err != nil {
			return nil, fmt.Errorf("storage.%s: scan row: %w", op, err)
		}
		coins = append(coins, c)
	}
	return coins, rows.Err()
}

// escapeLike escapa los comodines de LIKE para que el texto del usuario sea literal.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
