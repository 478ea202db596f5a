package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-qrinventory/internal/api"
	"ms-qrinventory/internal/approval"
	"ms-qrinventory/internal/auth"
	"ms-qrinventory/internal/config"
	"ms-qrinventory/internal/database/migrations"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/inventory"
	"ms-qrinventory/internal/kafka"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/qrimage"
	rediswrap "ms-qrinventory/internal/redis"
	"ms-qrinventory/internal/routing"
	"ms-qrinventory/internal/sales"
	"ms-qrinventory/internal/storage"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newLogger(cfg *config.Config, service string) *logger.Logger {
	log, err := logger.New(logger.Options{
		Dir:     cfg.Log.Dir,
		Service: service,
		Level:   logger.ParseLevel(cfg.Log.Level),
		Color:   cfg.Log.Color,
	})
	if err != nil {
		log = logger.NewLogger()
		log.Warn("LOGGER", fmt.Sprintf("Falling back to default logger: %v", err))
	}
	return log
}

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := cfg.Database.DSN()

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if !cfg.Redis.Enabled {
		log.Warn("REDIS", "Redis disabled, locks and counters fall back to the database")
		return bunDB, nil
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, continuing without it: %v", cfg.Redis.Addr, err))
		redisClient.Close()
		return bunDB, nil
	}

	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func runMigrations(cfg *config.Config, log *logger.Logger) {
	if !cfg.Migrations.Auto {
		log.Info("MIGRATE", "Automatic migrations disabled")
		return
	}
	runner := migrations.NewRunner(cfg.Database.DSN(), migrations.Options{Dir: cfg.Migrations.Dir, Auto: true}, log)
	defer runner.Close()
	if err := runner.Up(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to apply migrations: %v", err))
	}
}

func newNotifier(ctx context.Context, cfg *config.Config, log *logger.Logger) (inventory.Notifier, func()) {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("KAFKA", "Kafka disabled, notifications are logged only")
		return kafka.LogNotifier{Log: log}, func() {}
	}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.Notifications}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Notifications, log)
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

func newUploader(ctx context.Context, cfg *config.Config, log *logger.Logger) inventory.Uploader {
	if !cfg.Storage.Enabled {
		log.Info("STORAGE", fmt.Sprintf("S3 disabled, writing images under %s", cfg.Storage.LocalDir))
		return &storage.LocalUploader{Dir: cfg.Storage.LocalDir}
	}
	uploader, err := storage.NewS3Uploader(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Failed to configure S3: %v", err))
	}
	log.Info("STORAGE", fmt.Sprintf("Uploading images to bucket %s", cfg.Storage.Bucket))
	return uploader
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg, "qr-inventory")
	defer log.Close()

	log.Info("APP", "Starting QR inventory service initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	store := db.New(bunDB)
	defer store.Close()

	runMigrations(cfg, log)

	notify, closeNotifier := newNotifier(ctx, cfg, log)
	defer closeNotifier()

	generator := qrimage.NewGenerator(cfg.QR.Secret, cfg.QR.ActivationBaseURL, cfg.QR.ImageSize)

	inventoryService := inventory.NewService(store, generator, newUploader(ctx, cfg, log), notify, log)
	salesService := sales.NewService(store, notify, generator, log)
	approvalService := approval.NewService(store, notify, log)
	resolver := routing.NewResolver(store, cfg.Routing, log)

	if redisClient != nil {
		defer redisClient.Close()
		rdb := rediswrap.NewRedis(redisClient, cfg.Redis.LockTTL, log)
		if next, err := store.NextBundleSequence(ctx); err == nil {
			if err := rdb.EnsureSequenceAtLeast(ctx, "bundle", next-1); err != nil {
				log.Warn("REDIS", fmt.Sprintf("Failed to seed bundle counter: %v", err))
			}
		}
		inventoryService.Sequencer = rdb
		inventoryService.Locker = rdb
		salesService.Locker = rdb
		approvalService.Locker = rdb
		log.Info("REDIS", "Redis locks and counters enabled")
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up token verification: %v", err))
	}

	handler := &api.Handler{
		Inventory: inventoryService,
		Sales:     salesService,
		Approval:  approvalService,
		Calls:     resolver,
		Logger:    log,
		AdminRole: cfg.Auth.AdminRole,
	}

	log.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(auth.Middleware(verifier, log)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("QR inventory service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "QR inventory service shutdown complete")
	}
}
