package coinmarketcap

import (
	"log/slog"
	"strings"

	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/shopspring/decimal"
)

// mapTickers convierte los DTOs a domain.Ticker descartando registros sin id.
func mapTickers(raw tickerResponse) []domain.Ticker {
	tickers := make([]domain.Ticker, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			slog.Warn("ticker record without id, skipping", "name", r.Name, "symbol", r.Symbol)
			continue
		}
		tickers = append(tickers, mapTicker(r))
	}
	return tickers
}

// mapTicker convierte un tickerRecord a domain.Ticker.
func mapTicker(r tickerRecord) domain.Ticker {
	return domain.Ticker{
		CatalogID: r.ID,
		Name:      r.Name,
		Symbol:    r.Symbol,
		PriceBTC:  parsePrice(r.PriceBTC, r.ID, "price_btc"),
		PriceUSD:  parsePrice(r.PriceUSD, r.ID, "price_usd"),
	}
}

// parsePrice nunca falla: un precio null o no numérico queda como NULL con un warning.
func parsePrice(raw *string, catalogID, field string) decimal.NullDecimal {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		slog.Warn("null price in ticker", "catalog_id", catalogID, "field", field)
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		slog.Warn("unparseable price in ticker", "catalog_id", catalogID, "field", field, "value", *raw)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
