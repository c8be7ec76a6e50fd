package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"contracthub/internal/apperr"
	"contracthub/internal/model"
	"contracthub/pkg/db"
)

type ContractRepository struct {
	db db.DBTX
}

func NewContractRepository(q db.DBTX) *ContractRepository {
	return &ContractRepository{db: q}
}

func (r *ContractRepository) WithTx(q db.DBTX) *ContractRepository {
	return &ContractRepository{db: q}
}

// 合同的双方来自项目 owner 和中标 bid
const contractSelect = `
        SELECT c.id, c.project_id, c.bid_id, p.company_id, b.contractor_id,
               c.start_date, c.end_date, COALESCE(c.terms_and_conditions, ''),
               c.status, c.created_at, c.updated_at
        FROM contracts c
        JOIN projects p ON p.id = c.project_id
        JOIN bids b ON b.id = c.bid_id`

func (r *ContractRepository) Create(ctx context.Context, c *model.Contract) error {
	query := `
        INSERT INTO contracts (project_id, bid_id, start_date, end_date, terms_and_conditions, status)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		c.ProjectID, c.BidID, c.StartDate, c.EndDate, c.TermsAndConditions, c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: bid %d already has a contract", apperr.ErrConflict, c.BidID)
	}
	return err
}

func (r *ContractRepository) GetByID(ctx context.Context, id int64) (*model.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, contractSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "contract", id)
	}
	return c, nil
}

// LockByID locks the contract row for the rest of the transaction and
// returns its current state.
func (r *ContractRepository) LockByID(ctx context.Context, id int64) (*model.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, contractSelect+` WHERE c.id = $1 FOR UPDATE OF c`, id))
	if err != nil {
		return nil, notFound(err, "contract", id)
	}
	return c, nil
}

// ListByParty returns the contracts where userID is the company or the contractor.
func (r *ContractRepository) ListByParty(ctx context.Context, userID int64) ([]model.Contract, error) {
	rows, err := r.db.Query(ctx, contractSelect+`
        WHERE p.company_id = $1 OR b.contractor_id = $1
        ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := []model.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (r *ContractRepository) SetStatus(ctx context.Context, id int64, status model.ContractStatus) error {
	query := `
        UPDATE contracts
        SET status = $2,
            end_date = CASE WHEN $2 = 'completed' THEN COALESCE(end_date, NOW()) ELSE end_date END,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "contract", id)
	}
	return nil
}

func (r *ContractRepository) CountActiveByProject(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM contracts WHERE project_id = $1 AND status = $2`,
		projectID, model.ContractActive,
	).Scan(&n)
	return n, err
}

func scanContract(row pgx.Row) (*model.Contract, error) {
	var c model.Contract
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.BidID, &c.CompanyID, &c.ContractorID,
		&c.StartDate, &c.EndDate, &c.TermsAndConditions,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
