package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Unit es la unidad en la que se muestran precios y porcentajes.
type Unit string

const (
	UnitBTC Unit = "btc" // unidad base, por defecto
	UnitUSD Unit = "usd"
)

// ParseUnit reconoce "btc" / "usd" sin distinguir mayúsculas.
func ParseUnit(s string) (Unit, bool) {
	switch Unit(strings.ToLower(s)) {
	case UnitBTC:
		return UnitBTC, true
	case UnitUSD:
		return UnitUSD, true
	}
	return "", false
}

// Call es una predicción abierta por un usuario sobre una moneda.
// Invariante: como máximo un Call abierto por (Coin, CallerID).
// Una vez cerrado, Final, ClosedAt y TotalChange* no cambian.
type Call struct {
	ID         int64
	Coin       Coin
	ChannelID  string
	CallerID   string
	CallerName string
	Start      Quote
	Final      Quote
	ChangeBTC  decimal.NullDecimal // porcentaje total congelado al cerrar
	ChangeUSD  decimal.NullDecimal
	Closed     bool
	MadeAt     time.Time
	ClosedAt   *time.Time
}

// Close sella el precio final, la hora de cierre y el porcentaje total.
// Un porcentaje indefinido (precio ausente o inicial 0) queda como NULL.
func (c *Call) Close(final Quote, at time.Time) error {
	if c.Closed {
		return fmt.Errorf("call %d: %w", c.ID, ErrNoOpenCall)
	}
	c.Closed = true
	c.Final = final
	closedAt := at.UTC()
	c.ClosedAt = &closedAt
	c.ChangeBTC = nullPercent(c.Start.BTC, final.BTC)
	c.ChangeUSD = nullPercent(c.Start.USD, final.USD)
	return nil
}

// TotalChange devuelve el porcentaje congelado en la unidad pedida.
func (c Call) TotalChange(u Unit) decimal.NullDecimal {
	if u == UnitUSD {
		return c.ChangeUSD
	}
	return c.ChangeBTC
}

// PercentChange calcula ((end - start) / start) * 100.
// Devuelve ErrDivisionUndefined si falta algún precio o start es 0.
func PercentChange(start, end decimal.NullDecimal) (decimal.Decimal, error) {
	if !start.Valid || !end.Valid || start.Decimal.IsZero() {
		return decimal.Zero, ErrDivisionUndefined
	}
	return end.Decimal.Sub(start.Decimal).Div(start.Decimal).Mul(decimal.NewFromInt(100)), nil
}

func nullPercent(start, end decimal.NullDecimal) decimal.NullDecimal {
	pct, err := PercentChange(start, end)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(pct)
}

// CallStatus es un Call junto con la cotización actual de su moneda.
// Para calls cerrados Current se ignora: manda el porcentaje congelado.
type CallStatus struct {
	Call    Call
	Current Quote
}

// Change devuelve el porcentaje vivo (abierto) o congelado (cerrado).
func (s CallStatus) Change(u Unit) (decimal.Decimal, error) {
	if s.Call.Closed {
		total := s.Call.TotalChange(u)
		if !total.Valid {
			return decimal.Zero, ErrDivisionUndefined
		}
		return total.Decimal, nil
	}
	return PercentChange(s.Call.Start.In(u), s.Current.In(u))
}

// EndPrice es el precio final si está cerrado, o el actual si sigue abierto.
func (s CallStatus) EndPrice(u Unit) decimal.NullDecimal {
	if s.Call.Closed {
		return s.Call.Final.In(u)
	}
	return s.Current.In(u)
}

// CallFilter restringe listados de calls. Campos vacíos = sin filtro.
type CallFilter struct {
	CallerID string
	CoinID   int64
	Closed   bool
}

// RankByChange ordena por porcentaje descendente; los indefinidos van al final
// conservando su orden relativo.
func RankByChange(statuses []CallStatus, u Unit) []CallStatus {
	type ranked struct {
		status CallStatus
		pct    decimal.Decimal
		ok     bool
	}
	rs := make([]ranked, len(statuses))
	for i, s := range statuses {
		pct, err := s.Change(u)
		rs[i] = ranked{status: s, pct: pct, ok: err == nil}
	}

	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].ok != rs[j].ok {
			return rs[i].ok
		}
		return rs[i].pct.GreaterThan(rs[j].pct)
	})

	out := make([]CallStatus, len(rs))
	for i, r := range rs {
		out[i] = r.status
	}
	return out
}
