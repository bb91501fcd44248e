package events

import "time"

// Evento emitido por cada pagamento creditado na liquidação.
type PayoutCredited struct {
	StakeID  string    `json:"stake_id"`
	UserID   string    `json:"user_id"`
	MarketID string    `json:"market_id"`
	Amount   int64     `json:"amount"`
	TxID     string    `json:"tx_id"`
	Ts       time.Time `json:"ts"`
}

// Evento emitido quando uma comissão de indicação é creditada ao referenciador.
type ReferralCommissionCredited struct {
	ReferrerID string    `json:"referrer_id"`
	UserID     string    `json:"user_id"` // usuário indicado que gerou o ganho
	Amount     int64     `json:"amount"`
	OriginTxID string    `json:"origin_tx_id"`
	TxID       string    `json:"tx_id"`
	Ts         time.Time `json:"ts"`
}
