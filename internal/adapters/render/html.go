// Package render convierte resultados del dominio en mensajes HTML de Telegram.
package render

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/alejandrodnm/callbot/internal/ports"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

const (
	timestampFmt = "2006-01-02 15:04 UTC"
	coinURL      = "https://coinmarketcap.com/currencies/%s/"
	notAvailable = "n/a"

	arrowUp   = "▲"
	arrowDown = "▼"
)

// HTML implementa ports.Presenter con el parse mode HTML de Telegram.
// Los listados van en un bloque <pre> para que la tabla quede alineada.
type HTML struct{}

var _ ports.Presenter = HTML{}

// NewHTML crea el presenter.
func NewHTML() HTML { return HTML{} }

func (HTML) CallMade(call domain.Call) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Call made on %s</b>\n", coinTitle(call.Coin))
	fmt.Fprintf(&sb, "Price (BTC): <code>%s</code>\n", btcPrice(call.Start.BTC))
	fmt.Fprintf(&sb, "Price (USD): <code>%s</code>", usdPrice(call.Start.USD))
	return sb.String()
}

func (h HTML) AlreadyOpen(status domain.CallStatus) string {
	return fmt.Sprintf("%s already has an open call on %s.\n\n%s",
		esc(callerLabel(status.Call)), esc(status.Call.Coin.Name), h.Status(status))
}

func (HTML) Status(s domain.CallStatus) string {
	c := s.Call
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>[%s] Call on %s</b>\n", esc(callerLabel(c)), coinTitle(c.Coin))
	fmt.Fprintf(&sb, "Percent change (BTC): <code>%s</code>\n", change(s, domain.UnitBTC))
	fmt.Fprintf(&sb, "Percent change (USD): <code>%s</code>\n", change(s, domain.UnitUSD))

	label := "Current"
	if c.Closed {
		label = "Final"
	}
	fmt.Fprintf(&sb, "%s price (BTC): <code>%s</code>\n", label, btcPrice(s.EndPrice(domain.UnitBTC)))
	fmt.Fprintf(&sb, "%s price (USD): <code>%s</code>\n", label, usdPrice(s.EndPrice(domain.UnitUSD)))
	fmt.Fprintf(&sb, "Call price (BTC): <code>%s</code>\n", btcPrice(c.Start.BTC))
	fmt.Fprintf(&sb, "Call price (USD): <code>%s</code>\n", usdPrice(c.Start.USD))
	fmt.Fprintf(&sb, "Call made: %s", c.MadeAt.UTC().Format(timestampFmt))
	if c.ClosedAt != nil {
		fmt.Fprintf(&sb, "\nCall closed: %s", c.ClosedAt.UTC().Format(timestampFmt))
	}
	return sb.String()
}

func (HTML) List(view ports.ListView, statuses []domain.CallStatus) string {
	if len(statuses) == 0 {
		return "<b>" + esc(noCallsTitle(view)) + "</b>"
	}

	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	withCaller := view.CallerID == ""

	header := []any{"Coin", "Change", "Start", "End"}
	if withCaller {
		header = append([]any{"Caller"}, header...)
	}
	table.Header(header...)

	for _, s := range statuses {
		row := []any{
			s.Call.Coin.Symbol,
			change(s, view.Unit),
			price(s.Call.Start.In(view.Unit), view.Unit),
			price(s.EndPrice(view.Unit), view.Unit),
		}
		if withCaller {
			row = append([]any{callerLabel(s.Call)}, row...)
		}
		table.Append(row...)
	}
	table.Render()

	return fmt.Sprintf("<b>%s</b>\n<pre>%s</pre>", esc(listTitle(view, len(statuses))), esc(buf.String()))
}

func (HTML) Closed(call domain.Call) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Call closed on %s</b>\n", coinTitle(call.Coin))
	fmt.Fprintf(&sb, "Total percent change (BTC): <code>%s</code>\n", percent(call.ChangeBTC))
	fmt.Fprintf(&sb, "Total percent change (USD): <code>%s</code>\n", percent(call.ChangeUSD))
	fmt.Fprintf(&sb, "Final price (BTC): <code>%s</code>\n", btcPrice(call.Final.BTC))
	fmt.Fprintf(&sb, "Final price (USD): <code>%s</code>\n", usdPrice(call.Final.USD))
	fmt.Fprintf(&sb, "Call price (BTC): <code>%s</code>\n", btcPrice(call.Start.BTC))
	fmt.Fprintf(&sb, "Call price (USD): <code>%s</code>", usdPrice(call.Start.USD))
	return sb.String()
}

func (HTML) Ambiguous(m domain.Match) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Multiple coins found for \"%s\".</b>\n", esc(m.Query))
	for _, c := range m.Coins {
		fmt.Fprintf(&sb, "• %s\n", esc(c.Label()))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Failure traduce errores del dominio a mensajes para el usuario.
func (HTML) Failure(query string, err error) string {
	q := esc(query)
	switch {
	case errors.Is(err, domain.ErrNoMatch):
		return fmt.Sprintf("No coins found for \"%s\".", q)
	case errors.Is(err, domain.ErrAmbiguous):
		return fmt.Sprintf("Multiple coins found for \"%s\".", q)
	case errors.Is(err, domain.ErrAlreadyOpen):
		return fmt.Sprintf("There is already an open call on %s.", q)
	case errors.Is(err, domain.ErrNoOpenCall):
		return fmt.Sprintf("No open call on %s.", q)
	case errors.Is(err, domain.ErrNotPermitted):
		return "Only the caller can close that call."
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "The price feed timed out, try again in a moment."
	case errors.Is(err, domain.ErrPriceUnavailable), errors.Is(err, domain.ErrUpstreamUnavailable):
		return "Price unavailable right now, try again later."
	case errors.Is(err, domain.ErrDivisionUndefined):
		return "Percent change is undefined for that call."
	default:
		return "Something went wrong, the error has been logged."
	}
}

func (HTML) Help(prefix string) string {
	p := esc(prefix)
	lines := []string{
		"<b>Commands</b>",
		p + "make &lt;coin&gt; : open a call at the current price",
		p + "show &lt;coin&gt; [caller|all] [btc|usd] : show a call",
		p + "showlast [caller|all] : most recent open call",
		p + "list [caller|all] [open|closed] [btc|usd] : list calls",
		p + "close &lt;coin&gt; : close your call",
		p + "best [caller|all] [open|closed] [btc|usd] : leaderboard",
	}
	return strings.Join(lines, "\n")
}

// --- helpers ---

func esc(s string) string { return html.EscapeString(s) }

func coinTitle(c domain.Coin) string {
	if c.CatalogID == "" {
		return esc(c.Label())
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, esc(fmt.Sprintf(coinURL, c.CatalogID)), esc(c.Label()))
}

func callerLabel(c domain.Call) string {
	if c.CallerName != "" {
		return c.CallerName
	}
	return c.CallerID
}

func listTitle(view ports.ListView, n int) string {
	state := "Open"
	if view.Closed {
		state = "Closed"
	}

	var title string
	switch {
	case view.Best && n == 1:
		title = fmt.Sprintf("Top %s Call", state)
	case view.Best:
		title = fmt.Sprintf("Top %d %s Calls", n, state)
	default:
		title = fmt.Sprintf("All %s Calls", state)
	}
	return title + suffix(view) + " (" + strings.ToUpper(string(unitOrBTC(view.Unit))) + ")"
}

func noCallsTitle(view ports.ListView) string {
	state := "Open"
	if view.Closed {
		state = "Closed"
	}
	return "No " + state + " Calls" + suffix(view)
}

func suffix(view ports.ListView) string {
	var s string
	if view.CallerID != "" {
		name := view.CallerName
		if name == "" {
			name = view.CallerID
		}
		s += " made by " + name
	}
	if view.Coin != nil {
		s += " on " + view.Coin.Name
	}
	return s
}

func unitOrBTC(u domain.Unit) domain.Unit {
	if u == "" {
		return domain.UnitBTC
	}
	return u
}

func change(s domain.CallStatus, u domain.Unit) string {
	pct, err := s.Change(unitOrBTC(u))
	if err != nil {
		return notAvailable
	}
	return arrowed(pct)
}

func percent(p decimal.NullDecimal) string {
	if !p.Valid {
		return notAvailable
	}
	return arrowed(p.Decimal)
}

func arrowed(p decimal.Decimal) string {
	arrow := ""
	switch p.Sign() {
	case 1:
		arrow = arrowUp + " "
	case -1:
		arrow = arrowDown + " "
	}
	return arrow + p.Abs().StringFixed(2) + " %"
}

func price(p decimal.NullDecimal, u domain.Unit) string {
	if u == domain.UnitUSD {
		return usdPrice(p)
	}
	return btcPrice(p)
}

func btcPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return notAvailable
	}
	return p.Decimal.StringFixed(8) + " BTC"
}

func usdPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return notAvailable
	}
	return "$ " + p.Decimal.StringFixed(2)
}
