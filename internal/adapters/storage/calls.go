package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/shopspring/decimal"
)

const callSelect = `
SELECT c.id, c.channel_id, c.caller_id, c.caller_name,
       c.start_price_btc, c.start_price_usd,
       c.final_price_btc, c.final_price_usd,
       c.total_percent_change_btc, c.total_percent_change_usd,
       c.closed, c.made_at, c.closed_at,
       k.id, k.name, k.symbol, COALESCE(k.cmc_id, '')
FROM calls c
JOIN coins k ON k.id = c.coin_id`

// OpenCallFor devuelve el call abierto de (coin, caller), si existe.
func (r *repo) OpenCallFor(ctx context.Context, coinID int64, callerID string) (domain.Call, bool, error) {
	return r.callWhere(ctx, "OpenCallFor",
		`c.coin_id = ? AND c.caller_id = ? AND c.closed = 0`, coinID, callerID)
}

// CallByID devuelve un call por su ID.
func (r *repo) CallByID(ctx context.Context, id int64) (domain.Call, bool, error) {
	return r.callWhere(ctx, "CallByID", `c.id = ?`, id)
}

// InsertCall guarda un call nuevo. El índice único parcial convierte una
// carrera entre dos aperturas en domain.ErrAlreadyOpen.
func (r *repo) InsertCall(ctx context.Context, call domain.Call) (domain.Call, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO calls (
			coin_id, channel_id, caller_id, caller_name,
			start_price_btc, start_price_usd, closed, made_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		call.Coin.ID, call.ChannelID, call.CallerID, call.CallerName,
		toReal(call.Start.BTC), toReal(call.Start.USD),
		call.MadeAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Call{}, fmt.Errorf("storage.InsertCall coin=%d caller=%s: %w",
				call.Coin.ID, call.CallerID, domain.ErrAlreadyOpen)
		}
		return domain.Call{}, fmt.Errorf("storage.InsertCall: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Call{}, fmt.Errorf("storage.InsertCall: last id: %w", err)
	}
	call.ID = id
	return call, nil
}

// SaveClose persiste el cierre. Sólo toca calls todavía abiertos: cerrar dos
// veces devuelve domain.ErrNoOpenCall.
func (r *repo) SaveClose(ctx context.Context, call domain.Call) error {
	if !call.Closed || call.ClosedAt == nil {
		return fmt.Errorf("storage.SaveClose: call %d is not closed", call.ID)
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE calls SET
			closed = 1,
			final_price_btc = ?, final_price_usd = ?,
			total_percent_change_btc = ?, total_percent_change_usd = ?,
			closed_at = ?
		WHERE id = ? AND closed = 0`,
		toReal(call.Final.BTC), toReal(call.Final.USD),
		toReal(call.ChangeBTC), toReal(call.ChangeUSD),
		call.ClosedAt.UTC().Format(time.RFC3339Nano),
		call.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveClose %d: %w", call.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.SaveClose %d: rows affected: %w", call.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("storage.SaveClose %d: %w", call.ID, domain.ErrNoOpenCall)
	}
	return nil
}

// ListCalls devuelve calls abiertos o cerrados en orden de inserción.
func (r *repo) ListCalls(ctx context.Context, filter domain.CallFilter, limit int) ([]domain.Call, error) {
	where := []string{`c.closed = ?`}
	args := []any{boolInt(filter.Closed)}
	if filter.CallerID != "" {
		where = append(where, `c.caller_id = ?`)
		args = append(args, filter.CallerID)
	}
	if filter.CoinID != 0 {
		where = append(where, `c.coin_id = ?`)
		args = append(args, filter.CoinID)
	}

	q := callSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY c.id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.callsQuery(ctx, "ListCalls", q, args...)
}

// BestClosed ordena por porcentaje total descendente; los NULL van al final.
func (r *repo) BestClosed(ctx context.Context, callerID string, unit domain.Unit, limit int) ([]domain.Call, error) {
	col := "c.total_percent_change_btc"
	if unit == domain.UnitUSD {
		col = "c.total_percent_change_usd"
	}

	q := callSelect + ` WHERE c.closed = 1`
	var args []any
	if callerID != "" {
		q += ` AND c.caller_id = ?`
		args = append(args, callerID)
	}
	q += ` ORDER BY ` + col + ` IS NULL, ` + col + ` DESC, c.id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.callsQuery(ctx, "BestClosed", q, args...)
}

// LastOpen devuelve el call abierto más reciente.
func (r *repo) LastOpen(ctx context.Context, callerID string) (domain.Call, bool, error) {
	if callerID == "" {
		return r.callWhere(ctx, "LastOpen", `c.closed = 0 ORDER BY c.id DESC`)
	}
	return r.callWhere(ctx, "LastOpen", `c.closed = 0 AND c.caller_id = ? ORDER BY c.id DESC`, callerID)
}

// CallerByName busca el caller id del último call registrado con ese nombre.
func (r *repo) CallerByName(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx,
		`SELECT caller_id FROM calls WHERE lower(caller_name) = lower(?) ORDER BY id DESC LIMIT 1`,
		name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage.CallerByName %q: %w", name, err)
	}
	return id, true, nil
}

// --- helpers internos ---

func (r *repo) callWhere(ctx context.Context, op, where string, args ...any) (domain.Call, bool, error) {
	calls, err := r.callsQuery(ctx, op, callSelect+` WHERE `+where+` LIMIT 1`, args...)
	if err != nil {
		return domain.Call{}, false, err
	}
	if len(calls) == 0 {
		return domain.Call{}, false, nil
	}
	return calls[0], true, nil
}

func (r *repo) callsQuery(ctx context.Context, op, q string, args ...any) ([]domain.Call, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.%s: query: %w", op, err)
	}
	defer rows.Close()

	var calls []domain.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.%s: %w", op, err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func scanCall(rows *sql.Rows) (domain.Call, error) {
	var (
		c        domain.Call
		closed   int
		madeAt   string
		closedAt sql.NullString
	)
	err := rows.Scan(
		&c.ID, &c.ChannelID, &c.CallerID, &c.CallerName,
		&c.Start.BTC, &c.Start.USD,
		&c.Final.BTC, &c.Final.USD,
		&c.ChangeBTC, &c.ChangeUSD,
		&closed, &madeAt, &closedAt,
		&c.Coin.ID, &c.Coin.Name, &c.Coin.Symbol, &c.Coin.CatalogID,
	)
	if err != nil {
		return domain.Call{}, fmt.Errorf("scan row: %w", err)
	}

	c.Closed = closed != 0
	c.MadeAt, err = time.Parse(time.RFC3339Nano, madeAt)
	if err != nil {
		return domain.Call{}, fmt.Errorf("parse made_at %q: %w", madeAt, err)
	}
	if closedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, closedAt.String)
		if err != nil {
			return domain.Call{}, fmt.Errorf("parse closed_at %q: %w", closedAt.String, err)
		}
		c.ClosedAt = &t
	}
	return c, nil
}

// toReal pasa un decimal opcional a una columna REAL (nil = NULL).
func toReal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
