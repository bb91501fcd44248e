package pricing

import "math"

// Limites do multiplicador exibido ao usuário.
const (
	MinMultiplier = 1.0
	MaxMultiplier = 1000.0
)

// Odds converte os pools de um mercado em percentuais implícitos (a+b = 100).
// Pools vazios viram 50/50 — sem favorito antes da primeira aposta.
func Odds(poolA, poolB int64) (a, b int) {
	total := poolA + poolB
	if total == 0 {
		return 50, 50
	}
	a = int(math.Round(100 * float64(poolA) / float64(total)))
	return a, 100 - a
}

// Multiplier estima o retorno por ponto apostado no pool "my", já descontada
// a taxa. Com pool vazio retorna 1 (não há divisão por zero nem promessa de
// retorno infinito).
func Multiplier(myPool, otherPool int64, feeRate float64) float64 {
	if myPool <= 0 {
		return MinMultiplier
	}
	m := float64(myPool+otherPool) * (1 - feeRate) / float64(myPool)
	if m < MinMultiplier {
		return MinMultiplier
	}
	if m > MaxMultiplier {
		return MaxMultiplier
	}
	return m
}

// PotentialWin estima o pagamento caso o mercado fechasse com os pools como
// estão agora, já incluindo a própria aposta. É uma prévia: o pagamento real
// só é calculado na liquidação, sobre o snapshot final dos pools — nunca
// persistir este valor como payout.
func PotentialWin(amount, myPool, otherPool int64, feeRate float64) int64 {
	if amount <= 0 {
		return 0
	}
	distributable := float64(myPool+amount+otherPool) * (1 - feeRate)
	share := float64(amount) / float64(myPool+amount)
	return int64(math.Floor(distributable * share))
}
