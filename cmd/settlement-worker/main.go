package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	ledgerpg "github.com/Techizta/mintiq-miniapp-sub000/internal/ledger/postgres"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
	marketpg "github.com/Techizta/mintiq-miniapp-sub000/internal/market/postgres"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/producer"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/referral"
	referralpg "github.com/Techizta/mintiq-miniapp-sub000/internal/referral/postgres"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/rewards"
	rewardspg "github.com/Techizta/mintiq-miniapp-sub000/internal/rewards/postgres"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/settlement"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/config"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/db"
	sharedkafka "github.com/Techizta/mintiq-miniapp-sub000/internal/shared/kafka"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/logger"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/metrics"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Consumer do tópico de pedidos de resolução
	reader := sharedkafka.NewReader(cfg.KafkaBrokers, cfg.TopicResolveRequested, "settlement-worker")
	defer reader.Close()

	// Producers: eventos de liquidação e DLQ para pedidos envenenados
	publ := &producer.KafkaPublisher{
		MarketResolved:     sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketResolved),
		PayoutCredited:     sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutCredited),
		ReferralCommission: sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicReferralCommission),
	}
	defer publ.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicResolveRequestedDLQ != "" {
		dlqWriter = sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicResolveRequestedDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_requests_consumed_total", Help: "pedidos de resolução consumidos"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_markets_settled_total", Help: "mercados liquidados"})
	payouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_points_paid_total", Help: "pontos pagos aos vencedores"})
	dlqSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_dlq_total", Help: "pedidos enviados para a DLQ"})
	prometheus.MustRegister(consumed, settled, payouts, dlqSent)

	// Engine de liquidação sobre os stores Postgres
	ledgerStore := ledgerpg.New(pg)
	marketStore := marketpg.New(pg)
	resolver := rewards.NewResolver(rewardspg.New(pg))
	cascade := referral.NewCascade(log, referralpg.New(pg), ledgerStore, publ)

	engine := settlement.NewEngine(log, marketStore, ledgerStore, resolver, cascade, publ, cfg.FeeRate)
	engine.OnSettled = func() { settled.Inc() }
	engine.OnPayout = func(amount int64) { payouts.Add(float64(amount)) }

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", ":"+cfg.MetricsPort))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicResolveRequested),
		zap.String("publish", cfg.TopicMarketResolved),
	)

	// Loop principal: consome pedidos de resolução e liquida cada mercado.
	// A liquidação é idempotente, então entrega repetida do Kafka é inócua.
	for {
		key, value, err := sharedkafka.ReadNext(ctx, reader)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		consumed.Inc()

		var req events.MarketResolveRequested
		if jerr := json.Unmarshal(value, &req); jerr != nil {
			log.Error("unmarshal resolve request", zap.Error(jerr))
			sendDLQ(ctx, dlqWriter, dlqSent, string(key), value)
			continue
		}

		if err := settleWithRetry(ctx, log, engine, req); err != nil {
			log.Error("settle failed, sending to dlq",
				zap.String("marketId", req.MarketID), zap.Error(err))
			sendDLQ(ctx, dlqWriter, dlqSent, req.MarketID, value)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("settlement-worker stopped")
}

// settleWithRetry tenta liquidar o mercado até 3 vezes com backoff linear.
// Como a passada é retomável, cada retry continua de onde a anterior parou.
func settleWithRetry(ctx context.Context, log *zap.Logger, engine *settlement.Engine, req events.MarketResolveRequested) error {
	winning, err := market.ParseOutcome(req.WinningOutcome)
	if err != nil {
		return err
	}

	const retries = 3
	for i := 0; i < retries; i++ {
		if err = engine.Settle(ctx, req.MarketID, winning); err == nil {
			return nil
		}
		log.Warn("settle attempt failed",
			zap.String("marketId", req.MarketID), zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(300*(i+1)) * time.Millisecond):
		}
	}
	return err
}

func sendDLQ(ctx context.Context, w *kafkago.Writer, counter prometheus.Counter, key string, value []byte) {
	if w == nil {
		return
	}
	if err := sharedkafka.WriteJSON(ctx, w, key, value); err == nil {
		counter.Inc()
	}
}
