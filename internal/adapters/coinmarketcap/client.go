package coinmarketcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/alejandrodnm/callbot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultBase = "https://api.coinmarketcap.com/v1"

	tickerPath = "/ticker/"
)

// Config controla timeouts, rate limit y retries del client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // por request HTTP
	RatePerSec float64
	Burst      int
	MaxRetries int
	RetryWait  time.Duration // base del backoff exponencial
}

// DefaultConfig devuelve valores conservadores para la API pública.
// La API v1 permitía ~30 req/min: nos quedamos en 0.4/s.
func DefaultConfig() Config {
	return Config{
		BaseURL:    defaultBase,
		Timeout:    5 * time.Second,
		RatePerSec: 0.4,
		Burst:      3,
		MaxRetries: 2,
		RetryWait:  500 * time.Millisecond,
	}
}

// Client es el HTTP client de CoinMarketCap con rate limiting y retries.
// Implementa ports.TickerProvider.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	cfg     Config
}

// NewClient crea un Client. Si BaseURL está vacío usa el URL de producción.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 0.4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    cfg.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cfg:     cfg,
	}
}

// FetchTicker devuelve todos los tickers (limit 0 = sin límite).
func (c *Client) FetchTicker(ctx context.Context, limit int) ([]domain.Ticker, error) {
	u := fmt.Sprintf("%s%s?limit=%d", c.base, tickerPath, limit)

	var resp tickerResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("coinmarketcap.FetchTicker: %w", err)
	}

	tickers := mapTickers(resp)
	slog.Debug("ticker fetched", "records", len(resp), "tickers", len(tickers))
	return tickers, nil
}

// FetchCoin devuelve el ticker de una moneda. Una lista vacía cuenta como upstream caído.
func (c *Client) FetchCoin(ctx context.Context, catalogID string) (domain.Ticker, error) {
	u := fmt.Sprintf("%s%s%s/", c.base, tickerPath, url.PathEscape(catalogID))

	var resp tickerResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return domain.Ticker{}, fmt.Errorf("coinmarketcap.FetchCoin %q: %w", catalogID, err)
	}

	tickers := mapTickers(resp)
	if len(tickers) == 0 {
		return domain.Ticker{}, fmt.Errorf("coinmarketcap.FetchCoin %q: empty response: %w",
			catalogID, domain.ErrUpstreamUnavailable)
	}
	return tickers[0], nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
// Todos los errores salen envueltos en domain.ErrUpstreamUnavailable o
// domain.ErrUpstreamTimeout.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return classify(fmt.Errorf("rate limiter: %w", err))
		}

		resp, err := fn()
		if err != nil {
			if attempt == c.cfg.MaxRetries || ctx.Err() != nil {
				return classify(fmt.Errorf("request failed after %d attempts: %w", attempt+1, err))
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == c.cfg.MaxRetries {
				return fmt.Errorf("%w: server error %d after %d attempts",
					domain.ErrUpstreamUnavailable, resp.StatusCode, attempt+1)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return classify(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return fmt.Errorf("%w: exhausted %d retries", domain.ErrUpstreamUnavailable, c.cfg.MaxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.RetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// classify separa timeouts del resto de fallos de red.
func classify(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
}
