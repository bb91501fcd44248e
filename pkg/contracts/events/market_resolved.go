package events

import "time"

// Comando consumido pelo settlement-worker. Publicado pelo endpoint admin
// de resolução (oráculo externo decide o resultado, não o usuário final).
type MarketResolveRequested struct {
	MarketID       string    `json:"market_id"`
	WinningOutcome string    `json:"winning_outcome"` // "A" | "B"
	RequestedBy    string    `json:"requested_by,omitempty"`
	Ts             time.Time `json:"ts"`
}

// Evento emitido após a liquidação completa de um mercado.
type MarketResolved struct {
	MarketID       string    `json:"market_id"`
	WinningOutcome string    `json:"winning_outcome"`
	PoolA          int64     `json:"pool_a"`
	PoolB          int64     `json:"pool_b"`
	Fee            int64     `json:"fee"`
	Distributable  int64     `json:"distributable"`
	WinnersSettled int       `json:"winners_settled"`
	LosersSettled  int       `json:"losers_settled"`
	Ts             time.Time `json:"ts"`
}
