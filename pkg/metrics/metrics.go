package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12.8s
		},
	)

	// 里程碑状态流转计数
	MilestoneTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_transitions_total",
			Help: "Milestone status transition attempts",
		},
		[]string{"from", "to", "result"}, // result: ok, forbidden, invalid, not_found, validation, error
	)

	// 合同/项目完结计数
	CompletionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_total",
			Help: "Contracts and projects moved to completed by milestone payment",
		},
		[]string{"aggregate"}, // contract, project
	)

	// 进入死信队列的消息
	MQDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_dead_lettered_total",
			Help: "Messages rejected to the dead letter exchange",
		},
		[]string{"queue", "reason"},
	)

	// Outbox 发布结果
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events handed to the broker",
		},
		[]string{"routing_key", "status"}, // status: sent, failed
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "In-app notifications written by the worker",
		},
		[]string{"type"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// RecordTransition 记录里程碑状态流转结果
func RecordTransition(from, to, result string) {
	MilestoneTransitions.WithLabelValues(from, to, result).Inc()
}

// IncrementCompletion 记录合同或项目完结
func IncrementCompletion(aggregate string) {
	CompletionCount.WithLabelValues(aggregate).Inc()
}

// RecordOutboxPublish 记录 outbox 发布结果
func RecordOutboxPublish(routingKey, status string) {
	OutboxPublished.WithLabelValues(routingKey, status).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementNotification 记录通知写入
func IncrementNotification(notificationType string) {
	NotificationsCreated.WithLabelValues(notificationType).Inc()
}

func RecordMQDeadLetter(queue, reason string) {
	MQDeadLettered.WithLabelValues(queue, reason).Inc()
}

func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
