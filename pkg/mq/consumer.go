package mq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"contracthub/pkg/metrics"
	"contracthub/pkg/otel"
	"contracthub/pkg/trace"
	"contracthub/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryCounter tracks failed deliveries per message across requeues.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	retries    RetryCounter
	maxRetries int64

	pool *ants.Pool
}

// prefetch bounds unacked deliveries per consumer, and with it concurrency.
const prefetch = 10

// NewConsumer creates a consumer bound to one routing key on the events exchange.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(format string, err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf(format, err)
	}

	if err := DeclareExchange(ch); err != nil {
		return fail("failed to declare exchange: %w", err)
	}

	if err := DeclareDLQExchange(ch); err != nil {
		return fail("failed to declare DLQ exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, queueName, routingKey); err != nil {
		return fail("%w", err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, deadLetterArgs(routingKey))
	if err != nil {
		return fail("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return fail("failed to bind queue: %w", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithConcurrency handles up to n deliveries at once on an ants pool. n is
// capped at the channel prefetch.
func (c *Consumer) WithConcurrency(n int) (*Consumer, error) {
	if n <= 1 {
		return c, nil
	}
	pool, err := ants.NewPool(min(n, prefetch))
	if err != nil {
		return nil, fmt.Errorf("failed to create handler pool: %w", err)
	}
	c.pool = pool
	return c, nil
}

// WithRetryLimit dead-letters a message once it has failed more than limit
// times. Without it, retryable failures are requeued indefinitely.
func (c *Consumer) WithRetryLimit(counter RetryCounter, limit int64) *Consumer {
	c.retries = counter
	c.maxRetries = limit
	return c
}

// IsConnected reports whether the underlying connection is still open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel closes.
// Every delivery is acked, requeued, or dead-lettered.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	defer c.drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.dispatch(ctx, msg)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg amqp091.Delivery) {
	if c.pool == nil {
		c.handle(ctx, msg)
		return
	}
	// 池满时 Submit 阻塞，背压由 prefetch 控制
	if err := c.pool.Submit(func() { c.handle(ctx, msg) }); err != nil {
		c.logger.Error("Failed to submit delivery, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
	}
}

// drain waits for in-flight handlers before the channel is closed.
func (c *Consumer) drain() {
	if c.pool == nil {
		return
	}
	if err := c.pool.ReleaseTimeout(30 * time.Second); err != nil {
		c.logger.Warn("Handlers still running at shutdown", zap.Error(err))
	}
}

func (c *Consumer) handle(parent context.Context, msg amqp091.Delivery) {
	start := time.Now()

	// 已取出的消息在退出时也要处理完，不随 parent 取消
	ctx := otel.ExtractHeaders(context.WithoutCancel(parent), msg.Headers)
	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, c.routingKey, c.queue.Name)
	defer span.End()

	log := c.logger.With(
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.String("trace_id", trace.FromContext(ctx)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		otel.Fail(span, err)
		c.reject(ctx, log, msg, err)
		return
	}

	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
		return
	}
	if msg.Redelivered && c.retries != nil {
		if err := c.retries.Reset(ctx, c.retryKey(msg)); err != nil {
			log.Warn("Failed to reset retry counter", zap.Error(err))
		}
	}

	metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))
	log.Debug("Message processed successfully")
}

// reject requeues a retryable failure until the retry limit is reached and
// dead-letters everything else.
func (c *Consumer) reject(ctx context.Context, log *zap.Logger, msg amqp091.Delivery, handlerErr error) {
	retryable, reason := util.IsRetryableError(handlerErr)
	var attempts int64
	if retryable && c.retries != nil {
		n, err := c.retries.IncrementAndGet(ctx, c.retryKey(msg))
		if err != nil {
			log.Warn("Retry counter unavailable, requeueing", zap.Error(err))
		} else {
			attempts = n
			if !util.ShouldRetry(n, c.maxRetries, true) {
				retryable, reason = false, "retries_exhausted"
			}
		}
	}

	log.Error("Handler error",
		zap.Error(handlerErr),
		zap.Bool("requeue", retryable),
		zap.String("reason", reason),
		zap.Int64("attempts", attempts),
	)
	if !retryable {
		metrics.RecordMQDeadLetter(c.queue.Name, reason)
		if c.retries != nil {
			_ = c.retries.Reset(ctx, c.retryKey(msg))
		}
	}
	if err := msg.Nack(false, retryable); err != nil {
		log.Error("Failed to nack message", zap.Error(err))
	}
}

func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	id := msg.MessageId
	if id == "" {
		sum := sha256.Sum256(msg.Body)
		id = hex.EncodeToString(sum[:8])
	}
	return c.queue.Name + ":" + id
}
