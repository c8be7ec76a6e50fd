package otel

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan starts a client span for one SQL statement.
func DBSpan(ctx context.Context, sql string) (context.Context, trace.Span) {
	op := SQLOperation(sql)
	return Tracer().Start(ctx, "db."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperationKey.String(op),
			attribute.String("db.statement", sql),
		),
	)
}

// EndDBSpan ends span; pgx.ErrNoRows is not a failure.
func EndDBSpan(span trace.Span, err error) {
	switch {
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		span.SetStatus(codes.Ok, "")
	default:
		Fail(span, err)
	}
	span.End()
}

// SQLOperation returns the leading keyword of a statement, e.g. SELECT.
func SQLOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}
