// Package commands traduce comandos del chat a operaciones del catálogo y
// del ledger. Todo error acaba convertido en un mensaje: nada sube al transporte.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/callbot/internal/application/catalog"
	"github.com/alejandrodnm/callbot/internal/application/ledger"
	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/alejandrodnm/callbot/internal/ports"
)

// Router despacha un domain.Request al handler de su comando.
type Router struct {
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	callers   ports.CallerDirectory
	presenter ports.Presenter
	prefix    string
}

// New crea el router. prefix sólo se usa para el texto de ayuda.
func New(cat *catalog.Catalog, led *ledger.Ledger, callers ports.CallerDirectory, presenter ports.Presenter, prefix string) *Router {
	return &Router{catalog: cat, ledger: led, callers: callers, presenter: presenter, prefix: prefix}
}

// Handle ejecuta el comando y devuelve la respuesta a enviar al chat.
func (r *Router) Handle(ctx context.Context, req domain.Request) (reply string) {
	start := time.Now()
	cmd := strings.ToLower(req.Command)

	defer func() {
		if p := recover(); p != nil {
			slog.Error("command panicked", "cmd", cmd, "args", req.Args, "caller", req.Caller.ID, "panic", p)
			reply = r.presenter.Failure(strings.Join(req.Args, " "), fmt.Errorf("panic: %v", p))
		}
		slog.Debug("command handled", "cmd", cmd, "caller", req.Caller.ID, "elapsed", time.Since(start).Round(time.Millisecond))
	}()

	slog.Info("command", "cmd", cmd, "args", req.Args, "caller", req.Caller.ID, "channel", req.ChannelID)

	switch cmd {
	case "make":
		return r.make(ctx, req)
	case "show":
		return r.show(ctx, req)
	case "showlast":
		return r.showLast(ctx, req)
	case "list":
		return r.list(ctx, req)
	case "close":
		return r.close(ctx, req)
	case "best":
		return r.best(ctx, req)
	default:
		return r.presenter.Help(r.prefix)
	}
}

func (r *Router) make(ctx context.Context, req domain.Request) string {
	coin, reply, ok := r.resolveCoin(ctx, req)
	if !ok {
		return reply
	}

	status, err := r.ledger.Open(ctx, coin, req.Caller, req.ChannelID)
	if errors.Is(err, domain.ErrAlreadyOpen) {
		return r.presenter.AlreadyOpen(status)
	}
	if err != nil {
		return r.fail(req, coin.Name, err)
	}
	return r.presenter.CallMade(status.Call)
}

func (r *Router) show(ctx context.Context, req domain.Request) string {
	coin, reply, ok := r.resolveCoin(ctx, req)
	if !ok {
		return reply
	}
	opts := r.parseOptions(ctx, req, req.Args[1:])
	view := ports.ListView{Unit: opts.unit, CallerID: opts.callerID, CallerName: opts.callerName, Coin: &coin}

	if opts.callerID == "" {
		statuses, err := r.ledger.ListOpen(ctx, domain.CallFilter{CoinID: coin.ID})
		if err != nil {
			return r.fail(req, coin.Name, err)
		}
		return r.presenter.List(view, statuses)
	}

	status, err := r.ledger.Get(ctx, coin, opts.callerID)
	if errors.Is(err, domain.ErrNoOpenCall) {
		return r.presenter.List(view, nil)
	}
	if err != nil {
		return r.fail(req, coin.Name, err)
	}
	return r.presenter.Status(status)
}

func (r *Router) showLast(ctx context.Context, req domain.Request) string {
	opts := r.parseOptions(ctx, req, req.Args)

	status, err := r.ledger.Last(ctx, opts.callerID)
	if errors.Is(err, domain.ErrNoOpenCall) {
		return r.presenter.List(ports.ListView{Unit: opts.unit, CallerID: opts.callerID, CallerName: opts.callerName}, nil)
	}
	if err != nil {
		return r.fail(req, "", err)
	}
	return r.presenter.Status(status)
}

func (r *Router) list(ctx context.Context, req domain.Request) string {
	opts := r.parseOptions(ctx, req, req.Args)

	statuses, err := r.ledger.List(ctx, domain.CallFilter{CallerID: opts.callerID, Closed: opts.closed})
	if err != nil {
		return r.fail(req, "", err)
	}
	return r.presenter.List(ports.ListView{
		Unit:       opts.unit,
		Closed:     opts.closed,
		CallerID:   opts.callerID,
		CallerName: opts.callerName,
	}, statuses)
}

func (r *Router) close(ctx context.Context, req domain.Request) string {
	coin, reply, ok := r.resolveCoin(ctx, req)
	if !ok {
		return reply
	}

	call, err := r.ledger.Close(ctx, coin, req.Caller)
	if err != nil {
		return r.fail(req, coin.Name, err)
	}
	return r.presenter.Closed(call)
}

func (r *Router) best(ctx context.Context, req domain.Request) string {
	opts := r.parseOptions(ctx, req, req.Args)

	statuses, err := r.ledger.Best(ctx, opts.callerID, opts.closed, ledger.DefaultBestCount, opts.unit)
	if err != nil {
		return r.fail(req, "", err)
	}
	return r.presenter.List(ports.ListView{
		Unit:       opts.unit,
		Closed:     opts.closed,
		Best:       true,
		CallerID:   opts.callerID,
		CallerName: opts.callerName,
	}, statuses)
}

// resolveCoin resuelve el primer argumento. Si no hay una única moneda
// devuelve ok=false y la respuesta a enviar.
func (r *Router) resolveCoin(ctx context.Context, req domain.Request) (domain.Coin, string, bool) {
	if len(req.Args) == 0 || strings.TrimSpace(req.Args[0]) == "" {
		return domain.Coin{}, r.presenter.Help(r.prefix), false
	}
	query := req.Args[0]

	m, err := r.catalog.Resolve(ctx, query)
	if err != nil {
		return domain.Coin{}, r.fail(req, query, err), false
	}
	switch m.Kind {
	case domain.MatchAmbiguous:
		slog.Info("ambiguous coin", "cmd", req.Command, "query", query, "matches", len(m.Coins))
		return domain.Coin{}, r.presenter.Ambiguous(m), false
	case domain.MatchNone:
		return domain.Coin{}, r.fail(req, query, fmt.Errorf("commands.resolve: %w", domain.ErrNoMatch)), false
	}
	coin, err := m.Unique()
	if err != nil {
		return domain.Coin{}, r.fail(req, query, err), false
	}
	return coin, "", true
}

// fail registra el error y lo traduce a mensaje. Los errores esperados del
// dominio van a warn; el resto a error.
func (r *Router) fail(req domain.Request, query string, err error) string {
	level := slog.LevelError
	if isExpected(err) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "command failed",
		"cmd", req.Command,
		"args", req.Args,
		"caller", req.Caller.ID,
		"query", query,
		"err", err,
	)
	return r.presenter.Failure(query, err)
}

func isExpected(err error) bool {
	for _, target := range []error{
		domain.ErrNoMatch,
		domain.ErrAmbiguous,
		domain.ErrAlreadyOpen,
		domain.ErrNoOpenCall,
		domain.ErrNotPermitted,
		domain.ErrPriceUnavailable,
		domain.ErrUpstreamUnavailable,
		domain.ErrUpstreamTimeout,
		domain.ErrDivisionUndefined,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
