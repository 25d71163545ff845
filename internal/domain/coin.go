package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coin es una moneda conocida por el catálogo.
// CatalogID es el id del proveedor externo (p.ej. "bitcoin"), único cuando existe.
type Coin struct {
	ID        int64
	Name      string
	Symbol    string
	CatalogID string
}

// Label devuelve "Name (SYMBOL)".
func (c Coin) Label() string {
	if c.Symbol == "" {
		return c.Name
	}
	return c.Name + " (" + c.Symbol + ")"
}

// Ticker es un registro del feed externo para una moneda.
// Los precios pueden faltar: el feed devuelve null o strings no numéricos.
type Ticker struct {
	CatalogID string
	Name      string
	Symbol    string
	PriceBTC  decimal.NullDecimal
	PriceUSD  decimal.NullDecimal
}

// Quote devuelve el par de precios del ticker.
func (t Ticker) Quote() Quote {
	return Quote{BTC: t.PriceBTC, USD: t.PriceUSD}
}

// Coin construye una Coin (sin ID interno) a partir del ticker.
func (t Ticker) Coin() Coin {
	return Coin{Name: t.Name, Symbol: t.Symbol, CatalogID: t.CatalogID}
}

// Quote es el precio de una moneda en la unidad base (BTC) y en fiat (USD).
type Quote struct {
	BTC decimal.NullDecimal
	USD decimal.NullDecimal
}

// In devuelve el precio en la unidad pedida.
func (q Quote) In(u Unit) decimal.NullDecimal {
	if u == UnitUSD {
		return q.USD
	}
	return q.BTC
}

// Snapshot es la tabla completa de precios del feed en un instante dado.
// Tickers conserva el orden del feed (ranking por market cap).
type Snapshot struct {
	FetchedAt time.Time
	Tickers   []Ticker
	byID      map[string]int
}

// NewSnapshot indexa los tickers por catalog id.
func NewSnapshot(tickers []Ticker, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		FetchedAt: fetchedAt,
		Tickers:   tickers,
		byID:      make(map[string]int, len(tickers)),
	}
	for i, t := range tickers {
		s.byID[t.CatalogID] = i
	}
	return s
}

// Lookup devuelve el ticker para el catalog id dado.
func (s *Snapshot) Lookup(catalogID string) (Ticker, bool) {
	if s == nil {
		return Ticker{}, false
	}
	i, ok := s.byID[catalogID]
	if !ok {
		return Ticker{}, false
	}
	return s.Tickers[i], true
}

// Len devuelve el número de tickers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tickers)
}
