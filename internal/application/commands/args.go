package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/callbot/internal/domain"
)

// options son los modificadores posicionales de show, showlast, list y best.
type options struct {
	unit       domain.Unit
	closed     bool
	callerID   string // "" = todos
	callerName string
}

// parseOptions interpreta argumentos libres. Por defecto: BTC, calls
// abiertos, del usuario que emite el comando. Lo que no se reconoce se ignora.
func (r *Router) parseOptions(ctx context.Context, req domain.Request, args []string) options {
	opts := options{
		unit:       domain.UnitBTC,
		callerID:   req.Caller.ID,
		callerName: req.Caller.Name,
	}

	for _, arg := range args {
		a := strings.ToLower(strings.TrimSpace(arg))
		if u, ok := domain.ParseUnit(a); ok {
			opts.unit = u
			continue
		}
		switch a {
		case "":
			continue
		case "open":
			opts.closed = false
			continue
		case "closed":
			opts.closed = true
			continue
		case "all":
			opts.callerID, opts.callerName = "", ""
			continue
		case "mine", "me":
			opts.callerID, opts.callerName = req.Caller.ID, req.Caller.Name
			continue
		}

		name := strings.TrimPrefix(strings.TrimSpace(arg), "@")
		if strings.EqualFold(name, req.Caller.Name) {
			opts.callerID, opts.callerName = req.Caller.ID, req.Caller.Name
			continue
		}
		id, ok, err := r.callers.CallerByName(ctx, name)
		if err != nil {
			slog.Warn("caller lookup failed", "name", name, "err", err)
			continue
		}
		if ok {
			opts.callerID, opts.callerName = id, name
			continue
		}
		slog.Debug("argument ignored", "cmd", req.Command, "arg", arg)
	}
	return opts
}
