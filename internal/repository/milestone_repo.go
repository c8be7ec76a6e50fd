package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"contracthub/internal/model"
	"contracthub/pkg/db"
)

type MilestoneRepository struct {
	db db.DBTX
}

func NewMilestoneRepository(q db.DBTX) *MilestoneRepository {
	return &MilestoneRepository{db: q}
}

func (r *MilestoneRepository) WithTx(q db.DBTX) *MilestoneRepository {
	return &MilestoneRepository{db: q}
}

const milestoneColumns = `id, contract_id, title, COALESCE(description, ''), amount, due_date, sort_order,
        status, completion_date, verification_date, payment_date, payment_reference,
        deliverable_url, notes, created_at, updated_at`

func (r *MilestoneRepository) GetByID(ctx context.Context, id int64) (*model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1`
	m, err := scanMilestone(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "milestone", id)
	}
	return m, nil
}

// ListByContract returns the contract's milestones ordered by sort_order.
func (r *MilestoneRepository) ListByContract(ctx context.Context, contractID int64) ([]model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE contract_id = $1 ORDER BY sort_order ASC, id ASC`
	rows, err := r.db.Query(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := []model.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) error {
	query := `
        INSERT INTO milestones (contract_id, title, description, amount, due_date, sort_order,
                                status, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $8)
        RETURNING id
    `
	return r.db.QueryRow(ctx, query,
		m.ContractID, m.Title, m.Description, m.Amount, m.DueDate, m.Order, m.Status, m.CreatedAt,
	).Scan(&m.ID)
}

// UpdateDetails writes the editable fields while the row is still pending.
func (r *MilestoneRepository) UpdateDetails(ctx context.Context, m *model.Milestone) (bool, error) {
	query := `
        UPDATE milestones
        SET title = $2, description = NULLIF($3, ''), amount = $4, due_date = $5, sort_order = $6,
            updated_at = $7
        WHERE id = $1 AND status = $8
    `
	tag, err := r.db.Exec(ctx, query,
		m.ID, m.Title, m.Description, m.Amount, m.DueDate, m.Order, m.UpdatedAt, model.MilestonePending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus is a compare-and-set: the row is only written while its
// status still equals from.
func (r *MilestoneRepository) UpdateStatus(ctx context.Context, m *model.Milestone, from model.MilestoneStatus) (bool, error) {
	query := `
        UPDATE milestones
        SET status = $2,
            completion_date = $3,
            verification_date = $4,
            payment_date = $5,
            payment_reference = $6,
            deliverable_url = $7,
            notes = $8,
            updated_at = $9
        WHERE id = $1 AND status = $10
    `
	tag, err := r.db.Exec(ctx, query,
		m.ID, m.Status, m.CompletionDate, m.VerificationDate, m.PaymentDate,
		m.PaymentReference, m.DeliverableURL, m.Notes, m.UpdatedAt, from,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID, &m.ContractID, &m.Title, &m.Description, &m.Amount, &m.DueDate, &m.Order,
		&m.Status, &m.CompletionDate, &m.VerificationDate, &m.PaymentDate, &m.PaymentReference,
		&m.DeliverableURL, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
