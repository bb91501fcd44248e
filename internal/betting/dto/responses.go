package dto

import "time"

type MarketResponse struct {
	MarketID     string    `json:"marketId"`
	LabelA       string    `json:"labelA"`
	LabelB       string    `json:"labelB"`
	PoolA        int64     `json:"poolA"`
	PoolB        int64     `json:"poolB"`
	OddsA        int       `json:"oddsA"`
	OddsB        int       `json:"oddsB"`
	Participants int       `json:"participants"`
	Status       string    `json:"status"`
	Deadline     time.Time `json:"deadline"`
}

type PreviewResponse struct {
	MarketID     string  `json:"marketId"`
	Outcome      string  `json:"outcome"`
	Amount       int64   `json:"amount"`
	OddsA        int     `json:"oddsA"`
	OddsB        int     `json:"oddsB"`
	Multiplier   float64 `json:"multiplier"`
	PotentialWin int64   `json:"potentialWin"` // estimativa, não garantia
}

type PlaceBetResponse struct {
	StakeID    string `json:"stakeId"`
	TxID       string `json:"txId"`
	NewBalance int64  `json:"newBalance"`
	OddsA      int    `json:"oddsA"`
	OddsB      int    `json:"oddsB"`
}

type BalanceResponse struct {
	UserID      string `json:"userId"`
	Balance     int64  `json:"balance"`
	TotalEarned int64  `json:"totalEarned"`
	TotalSpent  int64  `json:"totalSpent"`
	TotalWon    int64  `json:"totalWon"`
	TierPoints  int64  `json:"tierPoints"`
	Tier        string `json:"tier"`
}

type ResolveAcceptedResponse struct {
	MarketID       string `json:"marketId"`
	WinningOutcome string `json:"winningOutcome"`
	Status         string `json:"status"` // RESOLVE_REQUESTED
}
