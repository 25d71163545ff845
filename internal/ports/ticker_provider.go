package ports

import (
	"context"

	"github.com/alejandrodnm/callbot/internal/domain"
)

// TickerProvider obtiene tickers del proveedor externo de precios.
type TickerProvider interface {
	// FetchTicker devuelve la lista completa de tickers (limit 0 = todos),
	// en el orden del proveedor.
	FetchTicker(ctx context.Context, limit int) ([]domain.Ticker, error)

	// FetchCoin devuelve el ticker de una sola moneda por su catalog id.
	FetchCoin(ctx context.Context, catalogID string) (domain.Ticker, error)
}
