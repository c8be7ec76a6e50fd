package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	var payload struct{ ID int64 }
	decodeErr := json.Unmarshal([]byte(`{"ID":`), &payload)
	typeErr := json.Unmarshal([]byte(`{"ID":"x"}`), &payload)

	cases := []struct {
		name      string
		err       error
		retryable bool
		reason    string
	}{
		{"nil", nil, false, ""},
		{"truncated json", decodeErr, false, "decode_error"},
		{"wrong json type", fmt.Errorf("decode: %w", typeErr), false, "decode_error"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"deadline", fmt.Errorf("insert: %w", context.DeadlineExceeded), true, "timeout"},
		{"no rows", pgx.ErrNoRows, false, "not_found"},
		{"unique", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false, "duplicate_key"},
		{"fk", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, false, "constraint_violation"},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true, "db_transient"},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, true, "db_transient"},
		{"syntax", &pgconn.PgError{Code: pgerrcode.SyntaxError}, false, "db_error"},
		{"unknown", errors.New("boom"), true, "unknown_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, reason := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
