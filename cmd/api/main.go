package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contracthub/config"
	"contracthub/internal/api"
	"contracthub/internal/milestone"
	"contracthub/internal/repository"
	"contracthub/internal/scheduler"
	"contracthub/internal/service/auth"
	"contracthub/internal/service/marketplace"
	"contracthub/pkg/circuitbreaker"
	"contracthub/pkg/db"
	"contracthub/pkg/logger"
	"contracthub/pkg/mq"
	"contracthub/pkg/otel"
	"contracthub/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New("contracthub-api", logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("Starting contracthub API...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("port", cfg.Server.Port),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "contracthub-api",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    cfg.OTel.SampleRatio,
	}, logr)
	if err != nil {
		logr.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	pool, err := db.NewConnection(cfg.DB, logr)
	if err != nil {
		logr.Fatal("DB initialization failed", zap.Error(err))
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = repository.Migrate(migrateCtx, pool, logr)
	migrateCancel()
	if err != nil {
		logr.Fatal("Schema migration failed", zap.Error(err))
	}

	// RabbitMQ publisher, only used by the outbox dispatcher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logr.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL, logr)
	marketplaceService := marketplace.NewService(repository.NewMarketplaceStore(pool, outboxRepo), logr)
	milestoneService := milestone.NewService(repository.NewMilestoneStore(pool, outboxRepo), logr)
	replayService := outbox.NewReplayService(outboxRepo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logr)
	if cfg.Outbox.Interval > 0 {
		dispatcher = dispatcher.WithInterval(cfg.Outbox.Interval)
	}
	if cfg.Outbox.BatchSize > 0 {
		dispatcher = dispatcher.WithBatchSize(cfg.Outbox.BatchSize)
	}
	if cfg.Outbox.MaxRetries > 0 {
		dispatcher = dispatcher.WithMaxRetries(cfg.Outbox.MaxRetries)
	}
	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logr.Warn("Broker circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	dispatcher = dispatcher.WithCircuitBreaker(circuitbreaker.New(breakerCfg))

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(ctx)
	}()

	jobs, err := scheduler.NewManager(logr)
	if err != nil {
		logr.Fatal("Scheduler initialization failed", zap.Error(err))
	}
	if cfg.Outbox.SweepInterval > 0 {
		sweep := scheduler.NewFailedEventSweep(replayService, cfg.Outbox.SweepInterval, cfg.Outbox.SweepLimit, logr)
		if err := jobs.Register(sweep); err != nil {
			logr.Fatal("Failed to register sweep job", zap.Error(err))
		}
	}
	jobs.Start()

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Handlers{
		Auth:         api.NewAuthHandler(authService, logr),
		Marketplace:  api.NewMarketplaceHandler(marketplaceService, logr),
		Milestone:    api.NewMilestoneHandler(milestoneService, logr),
		Notification: api.NewNotificationHandler(notificationRepo, logr),
		Admin:        api.NewAdminHandler(replayService, logr),
	}, cfg.JWT.Secret, pool, logr)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("Shutting down contracthub API gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logr.Info("HTTP server stopped")
	}

	// 停止 outbox dispatcher，等当前批次结束
	cancel()
	<-dispatcherDone
	jobs.Stop()

	logr.Info("contracthub API shutdown complete")
}
