package outbox

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contracthub/pkg/db"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ErrEventNotFound is returned by GetEventByID for unknown ids.
var ErrEventNotFound = errors.New("outbox event not found")

// Event is one row of outbox_events.
type Event struct {
	ID            int64           `json:"id" db:"id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   *int64          `json:"aggregate_id,omitempty" db:"aggregate_id"`
	RoutingKey    string          `json:"routing_key" db:"routing_key"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	Status        string          `json:"status" db:"status"`
	RetryCount    int             `json:"retry_count" db:"retry_count"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Repository reads and writes outbox_events.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, aggregate_type, aggregate_id, routing_key, payload, status,
       retry_count, next_retry_at, created_at, updated_at`

// InsertEvent 插入事件；q 必须是业务写入所在的事务
func (r *Repository) InsertEvent(ctx context.Context, q db.DBTX, event *Event) error {
	err := q.QueryRow(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, routing_key, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		event.AggregateType, event.AggregateID, event.RoutingKey, event.Payload, event.Status,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", event.RoutingKey, err)
	}
	return nil
}

// ClaimPendingEvents leases up to limit due events to the caller by pushing
// their next_retry_at forward by lease. Rows locked by another dispatcher
// are skipped, so replicas never publish the same event concurrently. An
// event whose publish outcome is never recorded becomes due again when the
// lease runs out.
func (r *Repository) ClaimPendingEvents(ctx context.Context, limit int, lease time.Duration) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET next_retry_at = NOW() + make_interval(secs => $2), updated_at = NOW()
		FROM due
		WHERE o.id = due.id
		RETURNING o.id, o.aggregate_type, o.aggregate_id, o.routing_key, o.payload, o.status,
		          o.retry_count, o.next_retry_at, o.created_at, o.updated_at`,
		limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	// UPDATE ... RETURNING 不保证顺序
	sortByID(events)
	return events, nil
}

// GetFailedEvents returns events that exhausted their retries, newest first.
func (r *Repository) GetFailedEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'failed'
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed events: %w", err)
	}
	return collectEvents(rows)
}

func (r *Repository) MarkAsSent(ctx context.Context, eventID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark event %d sent: %w", eventID, err)
	}
	return nil
}

// MarkAsFailed bumps retry_count. At maxRetries the event is parked as
// failed; before that it backs off linearly (5s, 10s, 15s...).
func (r *Repository) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE 'pending' END,
		    next_retry_at = CASE WHEN retry_count + 1 >= $2 THEN NULL
		                         ELSE NOW() + make_interval(secs => (retry_count + 1) * 5) END,
		    updated_at = NOW()
		WHERE id = $1`, eventID, maxRetries)
	if err != nil {
		return fmt.Errorf("mark event %d failed: %w", eventID, err)
	}
	return nil
}

func (r *Repository) GetEventByID(ctx context.Context, eventID int64) (*Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM outbox_events WHERE id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Event])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Event])
	if err != nil {
		return nil, fmt.Errorf("scan outbox events: %w", err)
	}
	return events, nil
}

func sortByID(events []*Event) {
	slices.SortFunc(events, func(a, b *Event) int { return cmp.Compare(a.ID, b.ID) })
}
