// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recharge-service/internal/chains/tron"
	"recharge-service/internal/config"
	"recharge-service/internal/domain"
	"recharge-service/internal/exchange"
	"recharge-service/internal/handler"
	"recharge-service/internal/notifier"
	"recharge-service/internal/router"
	"recharge-service/internal/server"
	"recharge-service/internal/usecase"
	"recharge-service/internal/worker"
	"recharge-service/pkg/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load .env
	_ = godotenv.Load()

	logger, err := newLogger()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting recharge service",
		zap.String("environment", cfg.App.Env),
		zap.String("network", cfg.Tron.Network),
		zap.String("transport", cfg.Tron.Transport),
		zap.String("db_driver", cfg.Database.Driver))
	if cfg.App.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin API disabled")
	}
	if cfg.IsDevelopment() && cfg.Tron.Network == "mainnet" {
		logger.Warn("development mode against mainnet")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, err := config.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	// Redis (shared rate cache, pub/sub notifications)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Exchange rates
	var (
		feed   exchange.PriceFeed
		shared exchange.SharedCache
	)
	if cfg.Exchange.BinanceURL != "" {
		feed = exchange.NewBinanceFeed(cfg.Exchange.BinanceURL, cfg.Exchange.FeedTimeout, cfg.Exchange.FeedRPS)
	}
	if redisClient != nil {
		shared = exchange.NewRedisCache(redisClient)
	}
	rates := exchange.NewProvider(store.Rates, feed, shared, exchange.Options{
		USDTRate:    cfg.Exchange.USDTRate,
		TRXRate:     cfg.Exchange.TRXRate,
		TTL:         cfg.Exchange.CacheTTL,
		FeedEnabled: cfg.Exchange.FeedEnabled && feed != nil,
	}, logger)

	// Notifications
	sinks, closeSinks, err := buildSinks(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to configure notifications", zap.Error(err))
	}
	defer closeSinks()
	fanout := notifier.NewFanout(logger, sinks...)

	// Ledger RPC
	ledger, closeLedger, err := buildLedger(cfg.Tron, logger)
	if err != nil {
		logger.Fatal("failed to initialize TRON ledger", zap.Error(err))
	}
	defer closeLedger()

	// Usecases
	settingsUC := usecase.NewSettingsUsecase(store.Settings, usecase.SettingsDefaults{
		MinAmount:       cfg.Recharge.MinAmount,
		OrderTTL:        cfg.Recharge.OrderTTL,
		WalletAddress:   cfg.Tron.WalletAddress,
		VIPMonthlyPrice: cfg.Recharge.VIPMonthlyPrice,
	}, logger)
	allocator := usecase.NewIdentifierAllocator(store.Identifiers, cfg.Recharge.AllocationAttempts, logger)
	orderUC := usecase.NewOrderUsecase(
		store.Orders,
		allocator,
		rates,
		settingsUC,
		utils.NewIDGenerator(),
		cfg.Recharge.MaxAmount,
		logger,
	)
	settlementUC := usecase.NewSettlementUsecase(store.Orders, rates, fanout, logger)
	balanceUC := usecase.NewBalanceUsecase(store.Balances, store.VIP, logger)
	statsUC := usecase.NewStatsUsecase(store.Orders, time.UTC)

	// Scanner
	scanner := worker.NewBlockScanner(
		ledger,
		store.Cursors,
		settlementUC,
		orderUC,
		settingsUC,
		worker.ScannerConfig{
			Interval:          cfg.Scanner.Interval,
			BlockDelay:        cfg.Scanner.BlockDelay,
			MaxBlocksPerCycle: cfg.Scanner.MaxBlocksCycle,
			Confirmations:     cfg.Tron.Confirmations,
			TokenContract:     cfg.Tron.USDTContract,
		},
		logger,
	)

	// HTTP
	r := router.SetupRoutes(
		handler.NewOrderHandler(orderUC, balanceUC, logger),
		handler.NewAdminHandler(rates, settingsUC, statsUC, balanceUC, settlementUC, logger),
		cfg.App.AdminToken,
		logger,
	)
	httpServer := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC health
	grpcServer := server.NewGRPCServer(cfg.App.GRPCAddr, logger)

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()

	go scanner.Start(ctx)
	grpcServer.SetServing(true)

	logger.Info("recharge service started",
		zap.String("http_addr", cfg.App.HTTPAddr),
		zap.String("grpc_addr", cfg.App.GRPCAddr))

	<-ctx.Done()
	logger.Info("shutting down...")

	grpcServer.SetServing(false)

	// the scanner finishes its block in flight before returning
	select {
	case <-scanner.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scanner did not stop in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	grpcServer.Stop()

	logger.Info("recharge service stopped")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildLedger(cfg config.TronConfig, logger *zap.Logger) (domain.Ledger, func(), error) {
	switch cfg.Transport {
	case "grpc":
		client, err := tron.NewTronGRPCClient(cfg.GRPCUrl, cfg.APIKey, cfg.RequestTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Stop, nil
	default:
		client := tron.NewTronHTTPClient(cfg.HTTPUrl, cfg.APIKey, cfg.RequestTimeout, cfg.RequestsPerSec, logger)
		return client, func() {}, nil
	}
}

func buildSinks(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) ([]notifier.Sink, func(), error) {
	var (
		sinks   []notifier.Sink
		closers []func()
	)
	for _, name := range cfg.Notifications.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, notifier.NewLogSink(logger))
		case "redis":
			if redisClient == nil {
				return nil, nil, fmt.Errorf("redis sink requires REDIS_ENABLED")
			}
			sinks = append(sinks, notifier.NewRedisSink(redisClient, cfg.Notifications.Channel))
		case "kafka":
			if !cfg.Kafka.Enabled {
				return nil, nil, fmt.Errorf("kafka sink requires KAFKA_ENABLED")
			}
			writer := notifier.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
			closers = append(closers, func() {
				if err := writer.Close(); err != nil {
					logger.Warn("failed to close kafka writer", zap.Error(err))
				}
			})
			sinks = append(sinks, notifier.NewKafkaSink(writer))
		default:
			return nil, nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return sinks, closeAll, nil
}
