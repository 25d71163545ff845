package domain

import "errors"

// Errores del dominio. Los adapters y servicios los envuelven con contexto
// (fmt.Errorf("pkg.Op: ...: %w", err)); el router los reconoce con errors.Is.
var (
	// Resolución de monedas
	ErrNoMatch   = errors.New("no coin matches")
	ErrAmbiguous = errors.New("several coins match")

	// Feed externo
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrPriceUnavailable    = errors.New("price unavailable")

	// Ciclo de vida de un call
	ErrAlreadyOpen  = errors.New("call already open")
	ErrNoOpenCall   = errors.New("no open call")
	ErrNotPermitted = errors.New("not permitted")

	// Porcentaje sin definir (precio inicial 0 o algún precio ausente)
	ErrDivisionUndefined = errors.New("percent change undefined")
)
