// Package ledger gestiona el ciclo de vida de los calls: abrir, cerrar,
// consultar y rankear contra la cotización actual.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/alejandrodnm/callbot/internal/ports"
)

// DefaultBestCount es el tamaño del ranking si no se pide otro.
const DefaultBestCount = 5

// Ledger implementa las operaciones sobre calls.
//
// Las cotizaciones se piden siempre antes de abrir la transacción: la base de
// datos usa una única conexión y no debe quedar retenida durante I/O de red.
type Ledger struct {
	store  ports.Storage
	prices ports.PriceSource
	now    func() time.Time
}

// New crea el ledger. now nil = time.Now.
func New(store ports.Storage, prices ports.PriceSource, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, prices: prices, now: now}
}

// Open abre un call de caller sobre coin. Si ya tiene uno abierto devuelve
// ese call junto con domain.ErrAlreadyOpen. Si no hay cotización el call se
// crea igualmente con precio inicial vacío.
func (l *Ledger) Open(ctx context.Context, coin domain.Coin, caller domain.Caller, channelID string) (domain.CallStatus, error) {
	quote := l.quote(ctx, coin, "open")

	var status domain.CallStatus
	err := l.store.InTx(ctx, func(tx ports.Tx) error {
		existing, ok, err := tx.OpenCallFor(ctx, coin.ID, caller.ID)
		if err != nil {
			return err
		}
		if ok {
			status = domain.CallStatus{Call: existing, Current: quote}
			return fmt.Errorf("call %d: %w", existing.ID, domain.ErrAlreadyOpen)
		}

		call, err := tx.InsertCall(ctx, domain.Call{
			Coin:       coin,
			ChannelID:  channelID,
			CallerID:   caller.ID,
			CallerName: caller.Name,
			Start:      quote,
			MadeAt:     l.now().UTC(),
		})
		if err != nil {
			return err
		}
		status = domain.CallStatus{Call: call, Current: quote}
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("ledger.Open coin=%d caller=%s: %w", coin.ID, caller.ID, err)
	}

	slog.Info("call opened",
		"call_id", status.Call.ID,
		"coin", coin.Symbol,
		"caller", caller.ID,
		"channel", channelID,
		"price_btc", quote.BTC.Decimal,
		"degraded", !quote.BTC.Valid,
	)
	return status, nil
}

// Close cierra el call abierto de caller sobre coin. Si el caller no tiene
// ninguno pero otros sí, devuelve domain.ErrNotPermitted; si no hay ninguno
// abierto sobre la moneda, domain.ErrNoOpenCall.
func (l *Ledger) Close(ctx context.Context, coin domain.Coin, caller domain.Caller) (domain.Call, error) {
	quote := l.quote(ctx, coin, "close")

	var closed domain.Call
	err := l.store.InTx(ctx, func(tx ports.Tx) error {
		call, ok, err := tx.OpenCallFor(ctx, coin.ID, caller.ID)
		if err != nil {
			return err
		}
		if !ok {
			others, err := tx.ListCalls(ctx, domain.CallFilter{CoinID: coin.ID}, 1)
			if err != nil {
				return err
			}
			if len(others) > 0 {
				return fmt.Errorf("call %d belongs to %s: %w", others[0].ID, others[0].CallerID, domain.ErrNotPermitted)
			}
			return domain.ErrNoOpenCall
		}
		closed, err = l.closeInTx(ctx, tx, call, quote)
		return err
	})
	if err != nil {
		return domain.Call{}, fmt.Errorf("ledger.Close coin=%d caller=%s: %w", coin.ID, caller.ID, err)
	}
	logClosed(closed)
	return closed, nil
}

// CloseByID cierra un call concreto. Sólo su dueño puede cerrarlo.
func (l *Ledger) CloseByID(ctx context.Context, id int64, caller domain.Caller) (domain.Call, error) {
	call, ok, err := l.store.CallByID(ctx, id)
	if err != nil {
		return domain.Call{}, fmt.Errorf("ledger.CloseByID %d: %w", id, err)
	}
	if !ok {
		return domain.Call{}, fmt.Errorf("ledger.CloseByID %d: %w", id, domain.ErrNoOpenCall)
	}
	quote := l.quote(ctx, call.Coin, "close")

	var closed domain.Call
	err = l.store.InTx(ctx, func(tx ports.Tx) error {
		current, ok, err := tx.CallByID(ctx, id)
		if err != nil {
			return err
		}
		if !ok || current.Closed {
			return domain.ErrNoOpenCall
		}
		if current.CallerID != caller.ID {
			return fmt.Errorf("call belongs to %s: %w", current.CallerID, domain.ErrNotPermitted)
		}
		closed, err = l.closeInTx(ctx, tx, current, quote)
		return err
	})
	if err != nil {
		return domain.Call{}, fmt.Errorf("ledger.CloseByID %d caller=%s: %w", id, caller.ID, err)
	}
	logClosed(closed)
	return closed, nil
}

// Get devuelve el call abierto de callerID sobre coin con su cotización actual.
func (l *Ledger) Get(ctx context.Context, coin domain.Coin, callerID string) (domain.CallStatus, error) {
	call, ok, err := l.store.OpenCallFor(ctx, coin.ID, callerID)
	if err != nil {
		return domain.CallStatus{}, fmt.Errorf("ledger.Get coin=%d caller=%s: %w", coin.ID, callerID, err)
	}
	if !ok {
		return domain.CallStatus{}, fmt.Errorf("ledger.Get coin=%d caller=%s: %w", coin.ID, callerID, domain.ErrNoOpenCall)
	}
	return domain.CallStatus{Call: call, Current: l.quote(ctx, coin, "show")}, nil
}

// List devuelve los calls que cumplen filter en orden de inserción, con cotización actual.
func (l *Ledger) List(ctx context.Context, filter domain.CallFilter) ([]domain.CallStatus, error) {
	calls, err := l.store.ListCalls(ctx, filter, 0)
	if err != nil {
		return nil, fmt.Errorf("ledger.List: %w", err)
	}
	return l.statuses(ctx, calls), nil
}

// ListOpen es List restringido a calls abiertos.
func (l *Ledger) ListOpen(ctx context.Context, filter domain.CallFilter) ([]domain.CallStatus, error) {
	filter.Closed = false
	return l.List(ctx, filter)
}

// Last devuelve el call abierto más reciente de callerID ("" = de cualquiera).
func (l *Ledger) Last(ctx context.Context, callerID string) (domain.CallStatus, error) {
	call, ok, err := l.store.LastOpen(ctx, callerID)
	if err != nil {
		return domain.CallStatus{}, fmt.Errorf("ledger.Last caller=%s: %w", callerID, err)
	}
	if !ok {
		return domain.CallStatus{}, fmt.Errorf("ledger.Last caller=%s: %w", callerID, domain.ErrNoOpenCall)
	}
	return domain.CallStatus{Call: call, Current: l.quote(ctx, call.Coin, "showlast")}, nil
}

// Best rankea por porcentaje descendente. Los cerrados usan el porcentaje
// congelado; los abiertos el porcentaje vivo contra la cotización actual.
// Los porcentajes indefinidos van al final.
func (l *Ledger) Best(ctx context.Context, callerID string, closed bool, count int, unit domain.Unit) ([]domain.CallStatus, error) {
	if count <= 0 {
		count = DefaultBestCount
	}

	if closed {
		calls, err := l.store.BestClosed(ctx, callerID, unit, count)
		if err != nil {
			return nil, fmt.Errorf("ledger.Best: %w", err)
		}
		return l.statuses(ctx, calls), nil
	}

	calls, err := l.store.ListCalls(ctx, domain.CallFilter{CallerID: callerID}, 0)
	if err != nil {
		return nil, fmt.Errorf("ledger.Best: %w", err)
	}
	ranked := domain.RankByChange(l.statuses(ctx, calls), unit)
	if len(ranked) > count {
		ranked = ranked[:count]
	}
	return ranked, nil
}

func (l *Ledger) closeInTx(ctx context.Context, tx ports.Tx, call domain.Call, quote domain.Quote) (domain.Call, error) {
	if err := call.Close(quote, l.now()); err != nil {
		return domain.Call{}, err
	}
	if err := tx.SaveClose(ctx, call); err != nil {
		return domain.Call{}, err
	}
	return call, nil
}

// statuses añade la cotización actual a cada call. Los cerrados no la necesitan.
// Todas las cotizaciones salen de una única consulta al PriceSource.
func (l *Ledger) statuses(ctx context.Context, calls []domain.Call) []domain.CallStatus {
	out := make([]domain.CallStatus, len(calls))
	var ids []string
	for i, c := range calls {
		out[i] = domain.CallStatus{Call: c}
		if !c.Closed {
			ids = append(ids, c.Coin.CatalogID)
		}
	}
	if len(ids) == 0 {
		return out
	}

	quotes, err := l.prices.LookupAll(ctx, ids)
	if err != nil {
		slog.Log(ctx, priceLogLevel(err), "prices unavailable",
			"op", "list",
			"calls", len(ids),
			"err", err,
		)
		return out
	}
	for i, c := range calls {
		if c.Closed {
			continue
		}
		q, ok := quotes[c.Coin.CatalogID]
		if !ok {
			slog.Warn("price unavailable",
				"op", "list",
				"coin_id", c.Coin.ID,
				"catalog_id", c.Coin.CatalogID,
				"err", domain.ErrPriceUnavailable,
			)
			continue
		}
		out[i].Current = q
	}
	return out
}

// quote devuelve la cotización actual o una vacía si no está disponible.
func (l *Ledger) quote(ctx context.Context, coin domain.Coin, op string) domain.Quote {
	q, err := l.prices.Lookup(ctx, coin.CatalogID)
	if err != nil {
		slog.Log(ctx, priceLogLevel(err), "price unavailable",
			"op", op,
			"coin_id", coin.ID,
			"catalog_id", coin.CatalogID,
			"err", err,
		)
		return domain.Quote{}
	}
	return q
}

func priceLogLevel(err error) slog.Level {
	if errors.Is(err, context.Canceled) {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func logClosed(c domain.Call) {
	slog.Info("call closed",
		"call_id", c.ID,
		"coin", c.Coin.Symbol,
		"caller", c.CallerID,
		"change_btc", c.ChangeBTC.Decimal,
		"change_btc_defined", c.ChangeBTC.Valid,
	)
}
