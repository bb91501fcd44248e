package topics

const (
	// Comandos de liquidação
	MarketResolveRequested    = "market_resolve_requested"
	MarketResolveRequestedDLQ = "market_resolve_requested_dlq"

	// Eventos do motor de apostas
	StakePlaced                = "stake_placed"
	MarketResolved             = "market_resolved"
	PayoutCredited             = "payout_credited"
	ReferralCommissionCredited = "referral_commission_credited"
)
