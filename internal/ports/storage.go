package ports

import (
	"context"

	"github.com/alejandrodnm/callbot/internal/domain"
)

// CoinStore persiste el catálogo de monedas.
type CoinStore interface {
	CoinByName(ctx context.Context, name string) (domain.Coin, bool, error)
	CoinByCatalogID(ctx context.Context, catalogID string) (domain.Coin, bool, error)

	// Pasos del resolver; todos sin distinguir mayúsculas y en orden de inserción.
	CoinsBySymbol(ctx context.Context, symbol string) ([]domain.Coin, error)
	CoinsBySymbolPrefix(ctx context.Context, prefix string) ([]domain.Coin, error)
	CoinsByNameOrCatalogID(ctx context.Context, fragment string) ([]domain.Coin, error)

	InsertCoin(ctx context.Context, coin domain.Coin) (domain.Coin, error)
	CountCoins(ctx context.Context) (int, error)
}

// CallStore persiste los calls.
type CallStore interface {
	// OpenCallFor devuelve el call abierto de (coin, caller), si existe.
	OpenCallFor(ctx context.Context, coinID int64, callerID string) (domain.Call, bool, error)
	CallByID(ctx context.Context, id int64) (domain.Call, bool, error)

	// InsertCall devuelve domain.ErrAlreadyOpen si ya hay un call abierto para (coin, caller).
	InsertCall(ctx context.Context, call domain.Call) (domain.Call, error)

	// SaveClose persiste el cierre de un call abierto.
	SaveClose(ctx context.Context, call domain.Call) error

	// ListCalls devuelve calls en orden de inserción (limit 0 = todos).
	ListCalls(ctx context.Context, filter domain.CallFilter, limit int) ([]domain.Call, error)

	// BestClosed devuelve los calls cerrados con mayor porcentaje total en la unidad dada.
	BestClosed(ctx context.Context, callerID string, unit domain.Unit, limit int) ([]domain.Call, error)

	// LastOpen devuelve el call abierto más reciente (callerID "" = cualquiera).
	LastOpen(ctx context.Context, callerID string) (domain.Call, bool, error)
}

// CallerDirectory resuelve nombres de usuario a caller ids a partir de los calls registrados.
type CallerDirectory interface {
	CallerByName(ctx context.Context, name string) (callerID string, ok bool, err error)
}

// Tx es un ámbito transaccional: todo lo hecho a través de él se confirma
// o se descarta junto.
type Tx interface {
	CoinStore
	CallStore
}

// Storage es el almacenamiento relacional completo.
type Storage interface {
	Tx
	CallerDirectory

	// InTx ejecuta fn dentro de una transacción: commit si fn devuelve nil,
	// rollback en cualquier otro caso (incluido panic).
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
