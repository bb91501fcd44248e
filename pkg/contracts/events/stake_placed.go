package events

// Evento publicado no tópico "stake_placed" após uma aposta aceita.
// TxID é a chave de idempotência do débito no ledger; consumidores
// (notificações, feed) usam ela para deduplicar.
type StakePlaced struct {
	StakeID  string `json:"stake_id"`
	UserID   string `json:"user_id"`
	MarketID string `json:"market_id"`
	Outcome  string `json:"outcome"` // "A" | "B"
	Amount   int64  `json:"amount"`
	TxID     string `json:"tx_id"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}
