package ports

import (
	"context"

	"github.com/alejandrodnm/callbot/internal/domain"
)

// SnapshotSource entrega la tabla de precios vigente (cacheada o refrescada).
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

// PriceSource cotiza una moneda por su catalog id.
type PriceSource interface {
	// Lookup devuelve domain.ErrPriceUnavailable si no hay snapshot o la
	// moneda no aparece en él. Los precios individuales pueden venir vacíos.
	Lookup(ctx context.Context, catalogID string) (domain.Quote, error)
	// LookupAll cotiza varias monedas contra una misma tabla. Las ausentes del
	// feed no aparecen en el mapa; el error es el de Lookup sin snapshot.
	LookupAll(ctx context.Context, catalogIDs []string) (map[string]domain.Quote, error)
}
