package ports

import "github.com/alejandrodnm/callbot/internal/domain"

// ListView describe qué listado se está mostrando, para títulos y mensajes vacíos.
type ListView struct {
	Unit       domain.Unit
	Closed     bool
	Best       bool
	CallerID   string // "" = todos los callers
	CallerName string
	Coin       *domain.Coin
}

// Presenter convierte resultados del dominio en mensajes para el chat.
type Presenter interface {
	CallMade(call domain.Call) string
	AlreadyOpen(status domain.CallStatus) string
	Status(status domain.CallStatus) string
	// List muestra el mensaje de "sin calls" si statuses está vacío.
	List(view ListView, statuses []domain.CallStatus) string
	Closed(call domain.Call) string
	Ambiguous(match domain.Match) string
	// Failure traduce un error del dominio (NoMatch, NotPermitted, upstream...) a texto.
	Failure(query string, err error) string
	Help(prefix string) string
}
