package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"contracthub/config"
	mqcontracts "contracthub/contracts/mq"
	"contracthub/internal/mqhandler"
	"contracthub/internal/repository"
	"contracthub/pkg/db"
	"contracthub/pkg/logger"
	"contracthub/pkg/mq"
	"contracthub/pkg/otel"
	redisclient "contracthub/pkg/redis"
	"contracthub/pkg/util"
)

// binding is one queue on the events exchange and the handler that drains it.
type binding struct {
	queue      string
	routingKey string
	handler    mq.MessageHandler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New("contracthub-worker", logger.Options{
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

	logr.Info("Starting contracthub worker...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "contracthub-worker",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    cfg.OTel.SampleRatio,
	}, logr)
	if err != nil {
		logr.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		logr.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	pool, err := db.NewConnection(cfg.DB, logr)
	if err != nil {
		logr.Fatal("DB initialization failed", zap.Error(err))
	}
	defer pool.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, logr)
	retries := util.NewRetryCounter(rdb, cfg.Worker.DedupTTL)
	notifications := mqhandler.NewNotificationHandler(repository.NewNotificationRepository(pool), deduper, logr)

	bindings := []binding{
		{"milestone.status_changed.notify.q", mqcontracts.RoutingMilestoneStatusChanged, notifications.HandleMilestoneStatusChanged},
		{"contract.completed.notify.q", mqcontracts.RoutingContractCompleted, notifications.HandleContractCompleted},
		{"project.completed.notify.q", mqcontracts.RoutingProjectCompleted, notifications.HandleProjectCompleted},
		{"contract.created.notify.q", mqcontracts.RoutingContractCreated, notifications.HandleContractCreated},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg        sync.WaitGroup
		consumers []*mq.Consumer
	)
	for _, b := range bindings {
		logr.Info("Initializing MQ consumer...",
			zap.String("queue", b.queue),
			zap.String("routing_key", b.routingKey),
		)
		consumer, err := mq.NewConsumer(cfg.MQ.URL, b.queue, b.routingKey, logr)
		if err != nil {
			logr.Fatal("Failed to init consumer", zap.String("queue", b.queue), zap.Error(err))
		}
		consumer.SetHandler(b.handler)
		consumer.WithRetryLimit(retries, cfg.Worker.MaxRetries)
		if _, err := consumer.WithConcurrency(cfg.Worker.Concurrency); err != nil {
			logr.Fatal("Failed to init handler pool", zap.String("queue", b.queue), zap.Error(err))
		}
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(b binding) {
			defer wg.Done()
			if err := consumer.StartConsuming(ctx); err != nil {
				logr.Fatal("Consumer failed", zap.String("queue", b.queue), zap.Error(err))
			}
		}(b)
	}
	logr.Info("All consumers started, worker is ready to process messages")

	// health / metrics
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		for _, consumer := range consumers {
			if !consumer.IsConnected() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
				return
			}
		}
		pingCtx, pingCancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer pingCancel()
		if err := pool.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              cfg.Worker.HealthPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logr.Info("Health server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("Health server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("Shutting down contracthub worker gracefully...")

	// 停止 MQ 消费者，等待正在处理的消息
	cancel()
	wg.Wait()
	for _, consumer := range consumers {
		consumer.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("Health server shutdown error", zap.Error(err))
	}

	logr.Info("contracthub worker shutdown complete")
}
