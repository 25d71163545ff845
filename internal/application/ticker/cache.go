// Package ticker mantiene en memoria la última tabla de precios del feed.
//
// Una sola tabla compartida por todos los comandos: se refresca como mucho
// una vez por TTL y nunca hay dos refrescos en vuelo a la vez. Si el feed
// falla y ya había una tabla, se sirve la anterior con un warning y no se
// vuelve a intentar hasta que pase un TTL desde el fallo.
package ticker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/alejandrodnm/callbot/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL            = 10 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
)

// Config controla la frescura de la tabla.
type Config struct {
	TTL            time.Duration
	RefreshTimeout time.Duration    // tope de un refresco, independiente del comando que lo dispara
	Now            func() time.Time // reloj inyectable; nil = time.Now
}

// Cache implementa ports.SnapshotSource y ports.PriceSource.
type Cache struct {
	provider ports.TickerProvider
	cfg      Config

	group singleflight.Group

	mu       sync.RWMutex
	snap     *domain.Snapshot
	failedAt time.Time // último refresco fallido; cero tras un refresco correcto
}

var (
	_ ports.SnapshotSource = (*Cache)(nil)
	_ ports.PriceSource    = (*Cache)(nil)
)

// New crea un Cache vacío: el primer acceso dispara la descarga.
func New(provider ports.TickerProvider, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{provider: provider, cfg: cfg}
}

// Snapshot devuelve una tabla con como mucho TTL de antigüedad, refrescándola si hace falta.
func (c *Cache) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	prev := c.current()
	if c.fresh(prev) {
		return prev, nil
	}
	if prev != nil && c.backingOff() {
		return prev, nil
	}

	v, err, shared := c.group.Do("ticker", func() (any, error) {
		// otro comando pudo refrescar (o fallar) mientras esperábamos
		snap := c.current()
		if c.fresh(snap) || (snap != nil && c.backingOff()) {
			return snap, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		if prev != nil {
			slog.Warn("ticker refresh failed, serving stale snapshot",
				"age", c.cfg.Now().Sub(prev.FetchedAt).Round(time.Second),
				"err", err,
			)
			return prev, nil
		}
		return nil, fmt.Errorf("ticker.Snapshot: %w: %w", domain.ErrPriceUnavailable, err)
	}
	if shared {
		slog.Debug("ticker refresh coalesced")
	}
	return v.(*domain.Snapshot), nil
}

// Lookup devuelve la cotización actual de una moneda.
func (c *Cache) Lookup(ctx context.Context, catalogID string) (domain.Quote, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	tk, ok := snap.Lookup(catalogID)
	if !ok {
		return domain.Quote{}, fmt.Errorf("ticker.Lookup %q: not in feed: %w", catalogID, domain.ErrPriceUnavailable)
	}
	return tk.Quote(), nil
}

// LookupAll cotiza varias monedas contra una única tabla. Las que no aparecen
// en el feed no tienen entrada en el resultado.
func (c *Cache) LookupAll(ctx context.Context, catalogIDs []string) (map[string]domain.Quote, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Quote, len(catalogIDs))
	for _, id := range catalogIDs {
		if tk, ok := snap.Lookup(id); ok {
			out[id] = tk.Quote()
		}
	}
	return out, nil
}

// Age devuelve la antigüedad de la tabla actual (0 si todavía no hay ninguna).
func (c *Cache) Age() time.Duration {
	snap := c.current()
	if snap == nil {
		return 0
	}
	return c.cfg.Now().Sub(snap.FetchedAt)
}

func (c *Cache) refresh(ctx context.Context) (*domain.Snapshot, error) {
	// el refresco no muere si se cancela el comando que lo disparó: lo esperan otros
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
	defer cancel()

	start := time.Now()
	tickers, err := c.provider.FetchTicker(rctx, 0)
	if err != nil {
		c.mu.Lock()
		c.failedAt = c.cfg.Now()
		c.mu.Unlock()
		return nil, err
	}

	snap := domain.NewSnapshot(tickers, c.cfg.Now())
	c.mu.Lock()
	c.snap = snap
	c.failedAt = time.Time{}
	c.mu.Unlock()

	slog.Debug("ticker refreshed", "coins", snap.Len(), "elapsed", time.Since(start).Round(time.Millisecond))
	return snap, nil
}

func (c *Cache) current() *domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) fresh(snap *domain.Snapshot) bool {
	return snap != nil && c.cfg.Now().Sub(snap.FetchedAt) <= c.cfg.TTL
}

// backingOff indica si el último refresco falló hace como mucho un TTL.
func (c *Cache) backingOff() bool {
	c.mu.RLock()
	failedAt := c.failedAt
	c.mu.RUnlock()
	return !failedAt.IsZero() && c.cfg.Now().Sub(failedAt) <= c.cfg.TTL
}
