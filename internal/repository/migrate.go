package repository

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"

	"contracthub/pkg/db"
)

//go:embed schema.sql
var schema string

// Migrate creates any missing tables and indexes. Every statement is
// idempotent, so it runs on each API start.
func Migrate(ctx context.Context, q db.DBTX, logger *zap.Logger) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("Database schema is up to date")
	return nil
}
