package outbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"contracthub/pkg/circuitbreaker"
	"contracthub/pkg/metrics"
)

// Store is the subset of Repository the dispatcher needs.
type Store interface {
	ClaimPendingEvents(ctx context.Context, limit int, lease time.Duration) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	repo       Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
	lease      time.Duration
	breaker    *circuitbreaker.CircuitBreaker
}

// NewDispatcher 创建新的 Dispatcher（默认最多重试 5 次，每秒扫描，每批 100 条）
func NewDispatcher(repo Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
		lease:      30 * time.Second,
	}
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// WithCircuitBreaker stops a batch early while the broker is failing, so
// pending events keep their retry budget during an outage.
func (d *Dispatcher) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Dispatcher {
	d.breaker = cb
	return d
}

// Start 阻塞运行直到 ctx 取消，应在 goroutine 中调用
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.ProcessPendingEvents(ctx)
		}
	}
}

// ProcessPendingEvents publishes one batch of due events and returns how many were sent.
func (d *Dispatcher) ProcessPendingEvents(ctx context.Context) int {
	events, err := d.repo.ClaimPendingEvents(ctx, d.batchSize, d.lease)
	if err != nil {
		d.logger.Error("Failed to claim pending events", zap.Error(err))
		return 0
	}

	sent := 0
	for i, event := range events {
		log := d.logger.With(
			zap.Int64("event_id", event.ID),
			zap.String("routing_key", event.RoutingKey),
		)

		if err := d.publish(ctx, event); err != nil {
			if errors.Is(err, circuitbreaker.ErrOpen) {
				log.Warn("Broker circuit open, deferring rest of batch until lease expires",
					zap.Int("remaining", len(events)-i),
				)
				break
			}
			log.Error("Failed to publish event", zap.Error(err))
			metrics.RecordOutboxPublish(event.RoutingKey, StatusFailed)
			if err := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				log.Error("Failed to mark event as failed", zap.Error(err))
			}
			continue
		}

		metrics.RecordOutboxPublish(event.RoutingKey, StatusSent)
		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			log.Error("Failed to mark event as sent", zap.Error(err))
			continue
		}
		sent++
		log.Debug("Event published successfully")
	}

	return sent
}

func (d *Dispatcher) publish(ctx context.Context, event *Event) error {
	if d.breaker == nil {
		return publishEvent(ctx, d.publisher, event)
	}
	return d.breaker.Execute(func() error {
		return publishEvent(ctx, d.publisher, event)
	})
}

// publishEvent 发布单个事件，payload 原样转发
func publishEvent(ctx context.Context, publisher Publisher, event *Event) error {
	ctx = traceContext(ctx, event.Payload)
	return publisher.PublishWithContext(ctx, event.RoutingKey, event.Payload)
}
