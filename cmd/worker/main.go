package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/config"
	"github.com/kursadbilgin/notify-gateway/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notify-gateway/internal/infra/redis"
	"github.com/kursadbilgin/notify-gateway/internal/observability"
	"github.com/kursadbilgin/notify-gateway/internal/provider"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"github.com/kursadbilgin/notify-gateway/internal/secret"
	"github.com/kursadbilgin/notify-gateway/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	cipher, err := secret.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("cipher initialization failed", zap.Error(err))
	}

	requestRepo := repository.NewGormRequestRepo(db)
	deliveryLogRepo := repository.NewGormDeliveryLogRepo(db)
	providerRepo := repository.NewGormProviderConfigRepo(db)
	webhookRepo := repository.NewGormWebhookRepo(db)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	deadLetters := queue.NewRabbitMQDeadLetters(rabbit, logger)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, logger)
	if err != nil {
		logger.Fatal("rate limiter init failed", zap.Error(err))
	}

	dispatcher, err := service.NewWebhookDispatcher(webhookRepo, logger)
	if err != nil {
		logger.Fatal("webhook dispatcher init failed", zap.Error(err))
	}

	worker, err := service.NewWorkerService(
		requestRepo,
		deliveryLogRepo,
		providerRepo,
		consumer,
		provider.NewFactory(logger),
		rateLimiter,
		cipher,
		deadLetters,
		dispatcher,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("worker service init failed", zap.Error(err))
	}
	worker.SetMetrics(observability.NewMetrics())

	scanInterval := time.Duration(cfg.ScanIntervalSec) * time.Second

	scheduler, err := service.NewScheduler(requestRepo, publisher, scanInterval, cfg.ScanBatchSize, logger)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}

	retryScanner, err := service.NewRetryScanner(requestRepo, publisher, scanInterval, cfg.ScanBatchSize, logger)
	if err != nil {
		logger.Fatal("retry scanner init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notify-gateway worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("scanInterval", scanInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(gctx) })
	g.Go(func() error { return scheduler.Start(gctx) })
	g.Go(func() error { return retryScanner.Start(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}

	logger.Info("notify-gateway worker shut down")
}
