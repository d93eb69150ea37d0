package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogapp "loyalty-server/internal/application/catalog"
	ledgerapp "loyalty-server/internal/application/ledger"
	membershipapp "loyalty-server/internal/application/membership"
	settlementapp "loyalty-server/internal/application/settlement"
	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/redemption"
	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/service"
	"loyalty-server/internal/domain/transaction"
	"loyalty-server/internal/infrastructure/cache"
	"loyalty-server/internal/infrastructure/config"
	"loyalty-server/internal/infrastructure/idgen"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/infrastructure/persistence/memory"
	"loyalty-server/internal/infrastructure/persistence/mysql"
	grpcserver "loyalty-server/internal/presentation/grpc"
	"loyalty-server/internal/presentation/rest"
)

// storage 永続化の実装一式
type storage struct {
	members     member.MemberRepository
	entries     ledger.LedgerRepository
	rewards     reward.RewardRepository
	redemptions redemption.RedemptionRepository
	txManager   transaction.TransactionManager
	healthCheck func(ctx context.Context) error
	close       func() error
}

// newStorage 設定に応じてMySQLまたはメモリの永続化を初期化
func newStorage(cfg *config.Config, onRetry func(ctx context.Context, attempt int, err error)) (*storage, error) {
	policy := transaction.RetryPolicy{
		MaxRetries: cfg.Ledger.MaxRetries,
		Backoff:    cfg.Ledger.RetryBackoff,
	}

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore(cfg.Ledger.LockTimeout)
		tm := memory.NewTransactionManager(store, policy)
		tm.OnRetry(onRetry)
		return &storage{
			members:     memory.NewMemberRepository(store),
			entries:     memory.NewLedgerRepository(store),
			rewards:     memory.NewRewardRepository(store),
			redemptions: memory.NewRedemptionRepository(store),
			txManager:   tm,
			healthCheck: func(context.Context) error { return nil },
			close:       func() error { return nil },
		}, nil

	case config.StorageDriverMySQL:
		db, err := mysql.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := mysql.Migrate(db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		tm := mysql.NewTransactionManager(db, policy)
		tm.OnRetry(onRetry)
		return &storage{
			members:     mysql.NewMemberRepository(db),
			entries:     mysql.NewLedgerRepository(db),
			rewards:     mysql.NewRewardRepository(db),
			redemptions: mysql.NewRedemptionRepository(db),
			txManager:   tm,
			healthCheck: db.HealthCheck,
			close:       db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	meterShutdown, metricsHandler, err := otelinfra.InitMeter(&cfg.OpenTelemetry, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	// ロガーとメトリクスの初期化
	tracer := otelinfra.Tracer(otelinfra.InstrumentationName)
	logger, err := otelinfra.NewLoggerWithLevel(tracer, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics, err := otelinfra.NewMetrics(otelinfra.InstrumentationName)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	ctx := context.Background()

	// 永続化の初期化
	store, err := newStorage(cfg, func(ctx context.Context, attempt int, err error) {
		metrics.RecordTxRetry(ctx)
		logger.Warn(ctx, "Retrying ledger transaction after conflict", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Error(ctx, "Failed to close storage", err, nil)
		}
	}()
	logger.Info(ctx, "Storage initialized", map[string]interface{}{
		"driver": cfg.Storage.Driver,
	})

	// 冪等キーのキャッシュ（Redisが無効なら台帳のみで判定する）
	var idemCache transaction.IdempotencyCache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		idemCache = cache.NewIdempotencyCache(client, cfg.Redis.IdempotencyTTL)
	}

	// ドメインサービスの初期化
	ids := idgen.NewUUIDGenerator()
	ledgerService := service.NewLedgerService(store.members, store.entries, ids)

	// アプリケーションサービスの初期化
	membershipAppService := membershipapp.NewMembershipApplicationService(store.members, logger)
	ledgerAppService := ledgerapp.NewLedgerApplicationService(
		store.members,
		store.entries,
		store.txManager,
		ledgerService,
		idemCache,
		logger,
		metrics,
	)
	catalogAppService := catalogapp.NewCatalogApplicationService(store.rewards, ids, logger, metrics)
	settlementAppService := settlementapp.NewSettlementApplicationService(
		store.members,
		store.rewards,
		store.redemptions,
		store.entries,
		store.txManager,
		ledgerService,
		ids,
		idemCache,
		logger,
		metrics,
	)

	// REST APIルーターの初期化
	router, err := rest.NewRouter(cfg, logger, metrics, rest.Services{
		Membership: membershipAppService,
		Ledger:     ledgerAppService,
		Catalog:    catalogAppService,
		Settlement: settlementAppService,
	}, rest.Options{
		MetricsHandler: metricsHandler,
		HealthCheck:    store.healthCheck,
	})
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	// gRPCサーバーの初期化
	grpcSrv, err := grpcserver.NewServer(cfg, logger, metrics, grpcserver.Services{
		Membership: membershipAppService,
		Ledger:     ledgerAppService,
		Settlement: settlementAppService,
	})
	if err != nil {
		log.Fatalf("Failed to create gRPC server: %v", err)
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	router.StartRateLimiterCleanup(bgCtx, time.Minute)

	address := fmt.Sprintf(":%d", cfg.Server.Port)

	// グレースフルシャットダウンの設定
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// REST APIサーバーを別ゴルーチンで起動
	go func() {
		logger.Info(ctx, "REST API server starting", map[string]interface{}{
			"address": address,
		})
		if err := router.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "REST API server error", err, nil)
		}
	}()

	// gRPCサーバーを別ゴルーチンで起動
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Error(ctx, "gRPC server error", err, nil)
		}
	}()

	// シグナルを待機
	<-quit
	logger.Info(ctx, "Shutting down servers", nil)
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down REST API server", err, nil)
	}

	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down gRPC server", err, nil)
	}

	logger.Info(ctx, "Servers stopped", nil)
}
