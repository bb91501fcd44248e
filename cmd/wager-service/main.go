package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting"
	betcache "github.com/Techizta/mintiq-miniapp-sub000/internal/betting/cache"
	bethttp "github.com/Techizta/mintiq-miniapp-sub000/internal/betting/http"
	ledgerpg "github.com/Techizta/mintiq-miniapp-sub000/internal/ledger/postgres"
	marketpg "github.com/Techizta/mintiq-miniapp-sub000/internal/market/postgres"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/producer"
	referralpg "github.com/Techizta/mintiq-miniapp-sub000/internal/referral/postgres"
	rewardspg "github.com/Techizta/mintiq-miniapp-sub000/internal/rewards/postgres"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/schedule"
	sharedcache "github.com/Techizta/mintiq-miniapp-sub000/internal/shared/cache"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/config"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/db"
	sharedkafka "github.com/Techizta/mintiq-miniapp-sub000/internal/shared/kafka"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/logger"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Kafka writers: apostas aceitas e pedidos de resolução
	publ := &producer.KafkaPublisher{
		StakePlaced:      sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicStakePlaced),
		ResolveRequested: sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicResolveRequested),
	}
	defer publ.Close()

	// Stores
	ledgerStore := ledgerpg.New(pg)
	marketStore := marketpg.New(pg)
	boosterStore := rewardspg.New(pg)
	referralStore := referralpg.New(pg)

	snapCache := betcache.NewMarketCache(redisClient, 60*time.Second, cfg.RedisPubSubChannel)

	// Métricas Prometheus
	placed := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_stakes_placed_total", Help: "apostas aceitas"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_stakes_rejected_total", Help: "apostas rejeitadas por motivo"}, []string{"reason"})
	locked := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_markets_locked_total", Help: "mercados travados no deadline"})
	prometheus.MustRegister(placed, rejected, locked)

	betSvc := betting.NewService(log, betting.Params{
		MinStake:        cfg.MinStake,
		ProtectionFloor: cfg.ProtectionFloor,
		FeeRate:         cfg.FeeRate,
		ConflictRetries: cfg.ConflictRetries,
	}, ledgerStore, marketStore, publ, snapCache)
	betSvc.OnPlaced = func() { placed.Inc() }
	betSvc.OnRejected = func(reason string) { rejected.WithLabelValues(reason).Inc() }

	// Scheduler de deadline: trava o mercado quando o prazo vence
	sched := schedule.New(log, marketStore)
	defer sched.Stop()
	sched.OnLocked = func() { locked.Inc() }
	// Travamento fora do fluxo de aposta: derruba o snapshot cacheado
	sched.OnAfterLock = func(marketID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := snapCache.Invalidate(ctx, marketID); err != nil {
			log.Warn("market snapshot invalidate failed", zap.String("marketId", marketID), zap.Error(err))
		}
	}

	api := bethttp.NewServer(log, betSvc, marketStore, ledgerStore, boosterStore, referralStore, snapCache, sched, publ)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", ":"+cfg.MetricsPort))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = apiSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("wager-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("wager-service stopped")
}
