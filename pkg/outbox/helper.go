package outbox

import (
	"context"
	"encoding/json"

	"contracthub/pkg/db"
	"contracthub/pkg/trace"
)

// InsertEventInTx 序列化 payload 并在事务中写入 outbox。
// 如果 payload 是 map 且 ctx 带有 trace_id，会一并写入，便于 dispatcher 继续传播。
func InsertEventInTx(
	ctx context.Context,
	q db.DBTX,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	payload interface{},
) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       withTraceID(ctx, payloadJSON),
		Status:        StatusPending,
	}

	return repo.InsertEvent(ctx, q, event)
}

func withTraceID(ctx context.Context, payload json.RawMessage) json.RawMessage {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return payload
	}

	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return payload
	}
	if _, exists := m["trace_id"]; exists {
		return payload
	}
	m["trace_id"] = traceID

	out, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return out
}

// traceContext 从 payload 中提取 trace_id 放回 context
func traceContext(ctx context.Context, payload json.RawMessage) context.Context {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return ctx
	}
	if traceID, ok := m["trace_id"].(string); ok && traceID != "" {
		return trace.WithContext(ctx, traceID)
	}
	return ctx
}
