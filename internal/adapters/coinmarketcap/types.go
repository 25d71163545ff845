package coinmarketcap

// DTOs raw de la API de CoinMarketCap (v1). Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// tickerRecord es un item de GET /ticker/ y de GET /ticker/{id}/.
// Los precios llegan como strings JSON y pueden ser null.
type tickerRecord struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Rank     string  `json:"rank"`
	PriceUSD *string `json:"price_usd"`
	PriceBTC *string `json:"price_btc"`
}

// tickerResponse es la respuesta de ambos endpoints: siempre una lista.
type tickerResponse []tickerRecord
