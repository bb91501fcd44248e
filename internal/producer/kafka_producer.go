package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/Techizta/mintiq-miniapp-sub000/internal/shared/kafka"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

// KafkaPublisher agrupa os writers de todos os tópicos de saída do sistema.
// Writers nulos são ignorados: cada binário instancia só os que usa.
type KafkaPublisher struct {
	StakePlaced        *kafka.Writer
	ResolveRequested   *kafka.Writer
	MarketResolved     *kafka.Writer
	PayoutCredited     *kafka.Writer
	ReferralCommission *kafka.Writer
}

func (p *KafkaPublisher) publish(ctx context.Context, w *kafka.Writer, key string, e any) error {
	if w == nil {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return sharedkafka.WriteJSON(ctx, w, key, b)
}

func (p *KafkaPublisher) PublishStakePlaced(ctx context.Context, e events.StakePlaced) error {
	return p.publish(ctx, p.StakePlaced, e.MarketID, e)
}

func (p *KafkaPublisher) PublishResolveRequested(ctx context.Context, e events.MarketResolveRequested) error {
	return p.publish(ctx, p.ResolveRequested, e.MarketID, e)
}

func (p *KafkaPublisher) PublishMarketResolved(ctx context.Context, e events.MarketResolved) error {
	return p.publish(ctx, p.MarketResolved, e.MarketID, e)
}

func (p *KafkaPublisher) PublishPayoutCredited(ctx context.Context, e events.PayoutCredited) error {
	return p.publish(ctx, p.PayoutCredited, e.MarketID, e)
}

func (p *KafkaPublisher) PublishReferralCommission(ctx context.Context, e events.ReferralCommissionCredited) error {
	return p.publish(ctx, p.ReferralCommission, e.ReferrerID, e)
}

// Close fecha todos os writers abertos.
func (p *KafkaPublisher) Close() error {
	var first error
	for _, w := range []*kafka.Writer{p.StakePlaced, p.ResolveRequested, p.MarketResolved, p.PayoutCredited, p.ReferralCommission} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
