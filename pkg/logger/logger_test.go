package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contracthub/pkg/trace"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	l, err := New("contracthub-test", Options{Level: "warn", File: path})
	require.NoError(t, err)

	l.Info("dropped below level")
	WithTrace(trace.WithContext(context.Background(), "abc123"), l).Warn("broker slow")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"broker slow"`)
	assert.Contains(t, out, `"service":"contracthub-test"`)
	assert.Contains(t, out, `"trace_id":"abc123"`)
	assert.NotContains(t, out, "dropped below level")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("svc", Options{Level: "chatty"})
	assert.Error(t, err)
}
