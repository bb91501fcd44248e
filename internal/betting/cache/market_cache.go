package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/pricing"
)

// Snapshot é a visão pública de um mercado servida pelo cache e transmitida
// no canal de broadcast a cada aposta aceita.
type Snapshot struct {
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
	Ts           time.Time `json:"ts"`
}

// MarketCache guarda o snapshot corrente de cada mercado no Redis e publica
// cada atualização no canal de broadcast.
type MarketCache struct {
	Client  *redis.Client
	TTL     time.Duration
	Channel string
}

func NewMarketCache(c *redis.Client, ttl time.Duration, channel string) *MarketCache {
	return &MarketCache{Client: c, TTL: ttl, Channel: channel}
}

func key(marketID string) string { return "market:snapshot:" + marketID }

// SetMarket grava o snapshot e o transmite no canal de broadcast.
func (mc *MarketCache) SetMarket(ctx context.Context, m market.Market, feeRate float64) error {
	a, b := pricing.Odds(m.PoolA, m.PoolB)
	snap := Snapshot{
		MarketID:     m.ID,
		LabelA:       m.LabelA,
		LabelB:       m.LabelB,
		PoolA:        m.PoolA,
		PoolB:        m.PoolB,
		OddsA:        a,
		OddsB:        b,
		Participants: int(m.Participants),
		Status:       string(m.Status),
		Deadline:     m.Deadline,
		Ts:           time.Now(),
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := mc.Client.Set(ctx, key(m.ID), payload, mc.TTL).Err(); err != nil {
		return err
	}
	if mc.Channel != "" {
		return mc.Client.Publish(ctx, mc.Channel, payload).Err()
	}
	return nil
}

// GetMarket lê o snapshot do cache; (false, nil) em cache miss.
func (mc *MarketCache) GetMarket(ctx context.Context, marketID string) (Snapshot, bool, error) {
	b, err := mc.Client.Get(ctx, key(marketID)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Invalidate remove o snapshot (mercado liquidado).
func (mc *MarketCache) Invalidate(ctx context.Context, marketID string) error {
	return mc.Client.Del(ctx, key(marketID)).Err()
}
