package domain

// Caller es el usuario del chat que emite comandos y abre calls.
type Caller struct {
	ID   string
	Name string
}

// Request es un comando ya separado en nombre y argumentos, independiente del transporte.
type Request struct {
	ChannelID string
	Caller    Caller
	Command   string
	Args      []string
}
