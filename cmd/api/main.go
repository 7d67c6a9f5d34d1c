package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notify-gateway/internal/config"
	"github.com/kursadbilgin/notify-gateway/internal/handler"
	"github.com/kursadbilgin/notify-gateway/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-gateway/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-gateway/internal/infra/redis"
	"github.com/kursadbilgin/notify-gateway/internal/observability"
	"github.com/kursadbilgin/notify-gateway/internal/queue"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"github.com/kursadbilgin/notify-gateway/internal/secret"
	"github.com/kursadbilgin/notify-gateway/internal/service"
	"github.com/kursadbilgin/notify-gateway/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

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

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
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
	templateRepo := repository.NewGormTemplateRepo(db)
	providerRepo := repository.NewGormProviderConfigRepo(db)
	webhookRepo := repository.NewGormWebhookRepo(db)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	deadLetters := queue.NewRabbitMQDeadLetters(rabbit, logger)

	notificationService, err := service.NewNotificationService(
		requestRepo,
		deliveryLogRepo,
		templateRepo,
		providerRepo,
		publisher,
		cipher,
		cfg.IsProduction(),
		logger,
	)
	if err != nil {
		logger.Fatal("notification service init failed", zap.Error(err))
	}

	webhookService, err := service.NewWebhookService(webhookRepo, logger)
	if err != nil {
		logger.Fatal("webhook service init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:      "notify-gateway",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		logger.Fatal("notification routes init failed", zap.Error(err))
	}
	if err := handler.RegisterWebhookRoutes(app, webhookService); err != nil {
		logger.Fatal("webhook routes init failed", zap.Error(err))
	}
	if err := handler.RegisterDeadLetterRoutes(app, deadLetters); err != nil {
		logger.Fatal("dead letter routes init failed", zap.Error(err))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit

		logger.Info("shutting down api", zap.String("signal", sig.String()))
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("notify-gateway api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}
