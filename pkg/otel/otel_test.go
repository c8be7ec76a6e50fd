package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestDisabledInitIsNoop(t *testing.T) {
	shutdown, err := Init(Config{ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)
	shutdown()

	_, span := StartSpan(context.Background(), "noop")
	Fail(span, errors.New("boom"))
	Fail(span, nil)
	span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestSQLOperation(t *testing.T) {
	assert.Equal(t, "SELECT", SQLOperation("  select id FROM milestones"))
	assert.Equal(t, "UPDATE", SQLOperation("\n        UPDATE milestones SET status = $1"))
	assert.Equal(t, "UNKNOWN", SQLOperation("   "))
}

func TestDBSpanWithoutProvider(t *testing.T) {
	ctx, span := DBSpan(context.Background(), "SELECT 1")
	assert.NotNil(t, ctx)
	EndDBSpan(span, nil)
}
