package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"contracthub/internal/model"
	"contracthub/pkg/db"
)

type BidRepository struct {
	db db.DBTX
}

func NewBidRepository(q db.DBTX) *BidRepository {
	return &BidRepository{db: q}
}

func (r *BidRepository) WithTx(q db.DBTX) *BidRepository {
	return &BidRepository{db: q}
}

const bidColumns = `id, project_id, contractor_id, amount, description, COALESCE(delivery_time, ''),
        status, created_at, updated_at`

func (r *BidRepository) Create(ctx context.Context, b *model.Bid) error {
	query := `
        INSERT INTO bids (project_id, contractor_id, amount, description, delivery_time, status)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
        RETURNING id, created_at, updated_at
    `
	return r.db.QueryRow(ctx, query,
		b.ProjectID, b.ContractorID, b.Amount, b.Description, b.DeliveryTime, b.Status,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (r *BidRepository) GetByID(ctx context.Context, id int64) (*model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	b, err := scanBid(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "bid", id)
	}
	return b, nil
}

// LockByID takes a row lock on the bid for the rest of the transaction.
func (r *BidRepository) LockByID(ctx context.Context, id int64) (*model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 FOR UPDATE`
	b, err := scanBid(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "bid", id)
	}
	return b, nil
}

func (r *BidRepository) ListByProject(ctx context.Context, projectID int64) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE project_id = $1 ORDER BY amount ASC, id ASC`
	return r.queryBids(ctx, query, projectID)
}

func (r *BidRepository) ListByContractor(ctx context.Context, contractorID int64) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE contractor_id = $1 ORDER BY created_at DESC, id DESC`
	return r.queryBids(ctx, query, contractorID)
}

// SummaryByProject returns the bid count and average amount of a project.
func (r *BidRepository) SummaryByProject(ctx context.Context, projectID int64) (*model.BidSummary, error) {
	query := `SELECT COUNT(*), COALESCE(AVG(amount), 0) FROM bids WHERE project_id = $1`
	var s model.BidSummary
	if err := r.db.QueryRow(ctx, query, projectID).Scan(&s.Count, &s.AverageBid); err != nil {
		return nil, err
	}
	s.AverageBid = s.AverageBid.Round(2)
	return &s, nil
}

func (r *BidRepository) SetStatus(ctx context.Context, id int64, status model.BidStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE bids SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "bid", id)
	}
	return nil
}

// RejectOtherPending rejects every pending bid on the project except keepID
// and returns how many were rejected.
func (r *BidRepository) RejectOtherPending(ctx context.Context, projectID, keepID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE bids SET status = $3, updated_at = NOW()
        WHERE project_id = $1 AND id <> $2 AND status = $4
    `, projectID, keepID, model.BidRejected, model.BidPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *BidRepository) queryBids(ctx context.Context, query string, args ...any) ([]model.Bid, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}

func scanBid(row pgx.Row) (*model.Bid, error) {
	var b model.Bid
	err := row.Scan(
		&b.ID, &b.ProjectID, &b.ContractorID, &b.Amount, &b.Description, &b.DeliveryTime,
		&b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
