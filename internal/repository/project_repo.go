package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"contracthub/internal/model"
	"contracthub/pkg/db"
)

type ProjectRepository struct {
	db db.DBTX
}

func NewProjectRepository(q db.DBTX) *ProjectRepository {
	return &ProjectRepository{db: q}
}

// WithTx returns a repository bound to q.
func (r *ProjectRepository) WithTx(q db.DBTX) *ProjectRepository {
	return &ProjectRepository{db: q}
}

const projectColumns = `id, company_id, title, description, category, COALESCE(location, ''),
        budget_min, budget_max, start_date, end_date, COALESCE(duration, ''), status, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	query := `
        INSERT INTO projects (company_id, title, description, category, location,
                              budget_min, budget_max, start_date, end_date, duration, status)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11)
        RETURNING id, created_at, updated_at
    `
	return r.db.QueryRow(ctx, query,
		p.CompanyID, p.Title, p.Description, p.Category, p.Location,
		p.BudgetMin, p.BudgetMax, p.StartDate, p.EndDate, p.Duration, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

// LockByID takes a row lock on the project for the rest of the transaction.
func (r *ProjectRepository) LockByID(ctx context.Context, id int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 FOR UPDATE`
	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

// List returns projects newest first, narrowed by the non-empty filter fields.
func (r *ProjectRepository) List(ctx context.Context, f model.ProjectFilter) ([]model.Project, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Location != "" {
		add("location ILIKE '%%' || $%d || '%%'", f.Location)
	}

	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	return r.queryProjects(ctx, query, args...)
}

func (r *ProjectRepository) ListByCompany(ctx context.Context, companyID int64) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE company_id = $1 ORDER BY created_at DESC, id DESC`
	return r.queryProjects(ctx, query, companyID)
}

func (r *ProjectRepository) SetStatus(ctx context.Context, id int64, status model.ProjectStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "project", id)
	}
	return nil
}

func (r *ProjectRepository) queryProjects(ctx context.Context, query string, args ...any) ([]model.Project, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.Title, &p.Description, &p.Category, &p.Location,
		&p.BudgetMin, &p.BudgetMax, &p.StartDate, &p.EndDate, &p.Duration, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
