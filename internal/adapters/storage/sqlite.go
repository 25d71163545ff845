package storage

// sqlite.go: persistencia de monedas y calls.
//
// Estrategia:
//   - `coins`: catálogo. cmc_id único cuando existe; nunca se borran filas.
//   - `calls`: un call por fila, nunca se borra. El índice único parcial
//     uq_calls_open garantiza a nivel de DB como máximo un call abierto por
//     (coin, caller), aunque dos comandos lleguen a la vez.
//   - Una sola conexión (SQLite es single-writer): las transacciones quedan
//     serializadas y check-then-insert es atómico dentro de InTx.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/callbot/internal/ports"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS coins (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    name    TEXT NOT NULL,
    symbol  TEXT NOT NULL DEFAULT '',
    cmc_id  TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS calls (
    id                       INTEGER PRIMARY KEY AUTOINCREMENT,
    coin_id                  INTEGER NOT NULL REFERENCES coins(id),
    channel_id               TEXT    NOT NULL,
    caller_id                TEXT    NOT NULL,
    caller_name              TEXT    NOT NULL DEFAULT '',
    start_price_btc          REAL,
    start_price_usd          REAL,
    final_price_btc          REAL,
    final_price_usd          REAL,
    total_percent_change_btc REAL,
    total_percent_change_usd REAL,
    closed                   INTEGER NOT NULL DEFAULT 0,
    made_at                  TEXT    NOT NULL,
    closed_at                TEXT
);

CREATE INDEX IF NOT EXISTS idx_coins_name    ON coins(name);
CREATE INDEX IF NOT EXISTS idx_coins_symbol  ON coins(symbol);
CREATE INDEX IF NOT EXISTS idx_calls_caller  ON calls(caller_id);
CREATE INDEX IF NOT EXISTS idx_calls_closed  ON calls(closed);
CREATE INDEX IF NOT EXISTS idx_calls_channel ON calls(channel_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_calls_open ON calls(coin_id, caller_id) WHERE closed = 0;
`

const dropSchema = `
DROP TABLE IF EXISTS calls;
DROP TABLE IF EXISTS coins;
`

// queryer es lo que comparten *sql.DB y *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implementa ports.Tx sobre una conexión o una transacción.
type repo struct {
	q queryer
}

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	repo
	db *sql.DB
}

var _ ports.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{repo: repo{q: db}, db: db}, nil
}

// InTx ejecuta fn dentro de una transacción. Commit si fn devuelve nil;
// rollback si devuelve error o hace panic. Los errores de fn se devuelven tal cual.
func (s *SQLiteStorage) InTx(ctx context.Context, fn func(tx ports.Tx) error) (err error) {
	txID := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InTx: begin: %w", err)
	}
	slog.Debug("tx open", "tx_id", txID)

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			slog.Error("tx rollback after panic", "tx_id", txID, "panic", p)
			panic(p)
		}
	}()

	if err := fn(&repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("tx rollback failed", "tx_id", txID, "err", rbErr)
		}
		slog.Debug("tx rollback", "tx_id", txID, "err", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.InTx: commit: %w", err)
	}
	slog.Debug("tx commit", "tx_id", txID)
	return nil
}

// Reset borra y recrea todas las tablas.
func (s *SQLiteStorage) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, dropSchema); err != nil {
		return fmt.Errorf("storage.Reset: drop: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.Reset: apply schema: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
