package repository

import (
	"context"

	"contracthub/internal/model"
	"contracthub/pkg/db"
)

type NotificationRepository struct {
	db db.DBTX
}

func NewNotificationRepository(q db.DBTX) *NotificationRepository {
	return &NotificationRepository{db: q}
}

// Insert 写入站内通知；同一用户同一 event_key 只保留一条，重复时返回 false
func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	query := `
        INSERT INTO notifications (user_id, type, content, event_key, is_read, created_at)
        VALUES ($1, $2, $3, $4, FALSE, NOW())
        ON CONFLICT (user_id, event_key) DO NOTHING
        RETURNING id, created_at
    `
	rows, err := r.db.Query(ctx, query, n.UserID, n.Type, n.Content, n.EventKey)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	inserted := false
	for rows.Next() {
		if err := rows.Scan(&n.ID, &n.CreatedAt); err != nil {
			return false, err
		}
		inserted = true
	}
	return inserted, rows.Err()
}

// ListByUser returns the newest notifications first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	query := `
        SELECT id, user_id, type, content, event_key, is_read, created_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Content, &n.EventKey, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one of the user's notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
