package domain

import "fmt"

// MatchKind es el resultado de resolver un texto libre contra el catálogo.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchUnique
	MatchAmbiguous
)

func (k MatchKind) String() string {
	switch k {
	case MatchUnique:
		return "unique"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// MatchStep indica qué paso del algoritmo produjo los resultados.
type MatchStep int

const (
	StepNone MatchStep = iota
	StepExactSymbol
	StepSymbolPrefix
	StepNameOrID
	StepUpstream // creada al vuelo desde el feed externo
)

// Match es el resultado etiquetado de Catalog.Find.
// Coins contiene todas las coincidencias del paso ganador, en orden de inserción.
type Match struct {
	Query string
	Kind  MatchKind
	Step  MatchStep
	Coins []Coin
}

// NewMatch clasifica las coincidencias de un paso.
func NewMatch(query string, step MatchStep, coins []Coin) Match {
	m := Match{Query: query, Step: step, Coins: coins}
	switch len(coins) {
	case 0:
		m.Kind = MatchNone
		m.Step = StepNone
	case 1:
		m.Kind = MatchUnique
	default:
		m.Kind = MatchAmbiguous
	}
	return m
}

// Unique devuelve la moneda si el match es único, o ErrNoMatch / ErrAmbiguous.
func (m Match) Unique() (Coin, error) {
	switch m.Kind {
	case MatchUnique:
		return m.Coins[0], nil
	case MatchAmbiguous:
		return Coin{}, fmt.Errorf("%q: %d candidates: %w", m.Query, len(m.Coins), ErrAmbiguous)
	default:
		return Coin{}, fmt.Errorf("%q: %w", m.Query, ErrNoMatch)
	}
}
