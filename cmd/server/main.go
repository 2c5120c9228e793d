package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/doubles-rating/internal/api"
	"github.com/rl-arena/doubles-rating/internal/config"
	"github.com/rl-arena/doubles-rating/internal/repository"
	"github.com/rl-arena/doubles-rating/internal/service"
	"github.com/rl-arena/doubles-rating/internal/websocket"
	"github.com/rl-arena/doubles-rating/pkg/database"
	"github.com/rl-arena/doubles-rating/pkg/distributed"
	"github.com/rl-arena/doubles-rating/pkg/logger"
	"github.com/rl-arena/doubles-rating/pkg/ratelimit"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting doubles rating server",
		"port", cfg.Port,
		"env", cfg.Env,
		"store", cfg.StoreDriver,
		"granularity", cfg.Rating.Granularity,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 저장소 선택
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open match store", "error", err)
	}
	defer closeStore()

	ledger := service.NewLedgerService(store, service.NewELOService(cfg.Rating))

	// Redis: 다중 인스턴스 append 잠금 + 공유 rate limit
	var (
		limiter    ratelimit.Limiter
		ledgerSync *distributed.LedgerSync
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		ledger.SetAppendLocker(distributed.NewAppendLock(client, cfg.AppendLockTTL))
		limiter = ratelimit.NewRedisLimiter(client, "ratelimit:submit:", cfg.SubmitRateLimit, time.Minute)
		ledgerSync = distributed.NewLedgerSync(client, logger.Named("ledger-sync"))
		ledger.SetAppendNotifier(ledgerSync)
		logger.Info("Redis connection established")
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.SubmitRateLimit, time.Minute)
		go memLimiter.Run(ctx, 10*time.Minute)
		limiter = memLimiter
	}

	// 원장 재생
	if err := ledger.Load(ctx); err != nil {
		logger.Fatal("Failed to replay match history", "error", err)
	}

	// WebSocket Hub 시작
	hub := websocket.NewHub()
	go hub.Run(ctx)
	ledger.SetEventPublisher(hub)

	// 순위표 갱신은 하나의 워커가 모아서 처리
	standings := service.NewStandingsService(ledger)
	ledger.SetAppendObserver(standings)
	go standings.RunPublisher(ctx, hub)

	// 다른 인스턴스의 append 반영
	if ledgerSync != nil {
		go func() {
			err := ledgerSync.Start(ctx, func(distributed.LedgerEvent) error {
				_, err := ledger.Sync(ctx)
				return err
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("Ledger sync stopped", "error", err)
			}
		}()
	}

	router := api.SetupRouter(api.Dependencies{
		Ledger:         ledger,
		Standings:      standings,
		MVP:            service.NewMVPService(ledger),
		Hub:            hub,
		SubmitLimiter:  limiter,
		SubmitLimit:    cfg.SubmitRateLimit,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Env:            cfg.Env,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	cancel()

	logger.Info("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.MatchStore, func(), error) {
	var (
		db  *database.DB
		err error
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err = database.Connect(cfg.DatabaseURL)
	case config.StoreSQLite:
		db, err = database.OpenSQLite(cfg.SQLitePath)
	default:
		logger.Warn("Using in-memory match store; history is lost on restart")
		return repository.NewMemoryMatchRepository(), func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	store := repository.NewSQLMatchRepository(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Database connection established", "dialect", db.Dialect)
	return store, func() { db.Close() }, nil
}
