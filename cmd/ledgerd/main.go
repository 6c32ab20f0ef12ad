package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/example/bankledger/internal/api"
	"github.com/example/bankledger/internal/cache"
	"github.com/example/bankledger/internal/config"
	"github.com/example/bankledger/internal/ledger"
	"github.com/example/bankledger/internal/query"
	"github.com/example/bankledger/internal/storage/postgres"
	"github.com/example/bankledger/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	accountStore := postgres.NewAccountStore(pool)
	txStore := postgres.NewTransactionStore(pool)

	coordinator := cache.NewCoordinator(cache.NewRedisStore(redisClient), cache.TTLOptions{
		Default: cfg.CacheDefaultTTL,
		Short:   cfg.CacheShortTTL,
		Long:    cfg.CacheLongTTL,
	}, logger)

	auditor := audit.NewChainLogger()

	ledgerSvc := ledger.NewService(accountStore, txStore, coordinator, auditor, logger)
	accountsSvc := ledger.NewAccounts(accountStore, coordinator, logger)
	queries := query.NewFacade(accountStore, txStore, coordinator)

	deps := api.Dependencies{
		Logger:       logger,
		Ledger:       ledgerSvc,
		Accounts:     accountsSvc,
		Queries:      queries,
		Auditor:      auditor,
		MaxBodyBytes: 1 << 20,
	}
	if cfg.RateLimitCapacity > 0 {
		deps.RateLimit = &api.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "ratelimit",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefill,
		}
	}
	router := api.NewRouter(deps)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("bank ledger listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
