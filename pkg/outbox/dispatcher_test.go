package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contracthub/pkg/circuitbreaker"
	"contracthub/pkg/trace"
)

type fakeStore struct {
	events []*Event
	sent   []int64
	failed []int64
	lease  time.Duration
}

func (s *fakeStore) ClaimPendingEvents(_ context.Context, limit int, lease time.Duration) ([]*Event, error) {
	s.lease = lease
	if len(s.events) > limit {
		return s.events[:limit], nil
	}
	return s.events, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	for _, e := range s.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *fakeStore) GetFailedEvents(_ context.Context, _ int) ([]*Event, error) {
	return s.events, nil
}

type published struct {
	routingKey string
	traceID    string
	payload    any
}

type fakePublisher struct {
	failOn string
	calls  []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	p.calls = append(p.calls, published{routingKey: routingKey, traceID: trace.FromContext(ctx), payload: payload})
	if routingKey == p.failOn {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestDispatcherMarksSentAndFailed(t *testing.T) {
	store := &fakeStore{events: []*Event{
		{ID: 1, RoutingKey: "milestone.status_changed", Payload: json.RawMessage(`{"milestone_id":1,"trace_id":"t-1"}`)},
		{ID: 2, RoutingKey: "contract.completed", Payload: json.RawMessage(`{"contract_id":7}`)},
	}}
	pub := &fakePublisher{failOn: "contract.completed"}

	sent := NewDispatcher(store, pub, zap.NewNop()).ProcessPendingEvents(context.Background())

	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)
	require.Len(t, pub.calls, 2)
	assert.Equal(t, "t-1", pub.calls[0].traceID)
	assert.Empty(t, pub.calls[1].traceID)
}

func TestDispatcherRespectsBatchSize(t *testing.T) {
	store := &fakeStore{events: []*Event{
		{ID: 1, RoutingKey: "a", Payload: json.RawMessage(`{}`)},
		{ID: 2, RoutingKey: "b", Payload: json.RawMessage(`{}`)},
		{ID: 3, RoutingKey: "c", Payload: json.RawMessage(`{}`)},
	}}
	pub := &fakePublisher{}

	sent := NewDispatcher(store, pub, zap.NewNop()).WithBatchSize(2).ProcessPendingEvents(context.Background())

	assert.Equal(t, 2, sent)
	assert.Len(t, pub.calls, 2)
	assert.Equal(t, 30*time.Second, store.lease)
}

func TestDispatcherStopsBatchWhenBreakerOpens(t *testing.T) {
	store := &fakeStore{}
	for i := int64(1); i <= 5; i++ {
		store.events = append(store.events, &Event{ID: i, RoutingKey: "milestone.status_changed", Payload: json.RawMessage(`{}`)})
	}
	pub := &fakePublisher{failOn: "milestone.status_changed"}
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Minute})

	sent := NewDispatcher(store, pub, zap.NewNop()).WithCircuitBreaker(cb).ProcessPendingEvents(context.Background())

	assert.Equal(t, 0, sent)
	assert.Len(t, pub.calls, 2)
	assert.Equal(t, []int64{1, 2}, store.failed, "events after the breaker opened keep their retry count")
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}

func TestReplayFailedEvents(t *testing.T) {
	store := &fakeStore{events: []*Event{
		{ID: 4, RoutingKey: "project.completed", Payload: json.RawMessage(`{}`)},
		{ID: 5, RoutingKey: "broken", Payload: json.RawMessage(`{}`)},
	}}
	pub := &fakePublisher{failOn: "broken"}

	n, err := NewReplayService(store, pub).ReplayFailedEvents(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{4}, store.sent)
	assert.Equal(t, []int64{5}, store.failed)
}

func TestReplayUnknownEvent(t *testing.T) {
	err := NewReplayService(&fakeStore{}, &fakePublisher{}).ReplayEvent(context.Background(), 99)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestWithTraceIDAddsTraceToPayload(t *testing.T) {
	ctx := trace.WithContext(context.Background(), "abc")

	out := withTraceID(ctx, json.RawMessage(`{"contract_id":3}`))

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "abc", m["trace_id"])
	assert.EqualValues(t, 3, m["contract_id"])
}
