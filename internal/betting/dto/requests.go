package dto

import "time"

type PlaceBetRequest struct {
	UserID   string `json:"userId"`
	MarketID string `json:"marketId"`
	Outcome  string `json:"outcome"` // "A" | "B"
	Amount   int64  `json:"amount"`  // pontos inteiros
}

type CreateMarketRequest struct {
	ID       string    `json:"id,omitempty"` // gerado se vazio
	LabelA   string    `json:"labelA"`
	LabelB   string    `json:"labelB"`
	Deadline time.Time `json:"deadline"`
}

type ResolveMarketRequest struct {
	WinningOutcome string `json:"winningOutcome"` // "A" | "B"
	RequestedBy    string `json:"requestedBy,omitempty"`
}

type ActivateBoosterRequest struct {
	UserID     string  `json:"userId"`
	Multiplier float64 `json:"multiplier"`
	Minutes    int     `json:"minutes"`
}

type LinkReferralRequest struct {
	ReferrerID string `json:"referrerId"`
	UserID     string `json:"userId"`
}
