package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contracthub/internal/milestone"
	"contracthub/internal/model"
	"contracthub/pkg/db"
	"contracthub/pkg/outbox"
)

// MilestoneStore is the Postgres implementation of milestone.Store.
type MilestoneStore struct {
	milestoneQueries
	pool *pgxpool.Pool
}

func NewMilestoneStore(pool *pgxpool.Pool, events *outbox.Repository) *MilestoneStore {
	return &MilestoneStore{
		milestoneQueries: newMilestoneQueries(pool, events),
		pool:             pool,
	}
}

func (s *MilestoneStore) WithinTx(ctx context.Context, fn func(q milestone.Queries) error) error {
	return db.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newMilestoneQueries(tx, s.events))
	})
}

var _ milestone.Store = (*MilestoneStore)(nil)

type milestoneQueries struct {
	q          db.DBTX
	milestones *MilestoneRepository
	contracts  *ContractRepository
	projects   *ProjectRepository
	events     *outbox.Repository
}

func newMilestoneQueries(q db.DBTX, events *outbox.Repository) milestoneQueries {
	return milestoneQueries{
		q:          q,
		milestones: NewMilestoneRepository(q),
		contracts:  NewContractRepository(q),
		projects:   NewProjectRepository(q),
		events:     events,
	}
}

func (m milestoneQueries) GetMilestone(ctx context.Context, id int64) (*model.Milestone, error) {
	return m.milestones.GetByID(ctx, id)
}

func (m milestoneQueries) ListMilestones(ctx context.Context, contractID int64) ([]model.Milestone, error) {
	return m.milestones.ListByContract(ctx, contractID)
}

func (m milestoneQueries) InsertMilestone(ctx context.Context, ms *model.Milestone) error {
	return m.milestones.Insert(ctx, ms)
}

func (m milestoneQueries) UpdateMilestoneDetails(ctx context.Context, ms *model.Milestone) (bool, error) {
	return m.milestones.UpdateDetails(ctx, ms)
}

func (m milestoneQueries) UpdateMilestoneStatus(ctx context.Context, ms *model.Milestone, from model.MilestoneStatus) (bool, error) {
	return m.milestones.UpdateStatus(ctx, ms, from)
}

func (m milestoneQueries) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	return m.contracts.GetByID(ctx, id)
}

func (m milestoneQueries) LockContract(ctx context.Context, id int64) (*model.Contract, error) {
	return m.contracts.LockByID(ctx, id)
}

func (m milestoneQueries) SetContractStatus(ctx context.Context, id int64, status model.ContractStatus) error {
	return m.contracts.SetStatus(ctx, id, status)
}

func (m milestoneQueries) LockProject(ctx context.Context, id int64) error {
	_, err := m.projects.LockByID(ctx, id)
	return err
}

func (m milestoneQueries) CountActiveContracts(ctx context.Context, projectID int64) (int, error) {
	return m.contracts.CountActiveByProject(ctx, projectID)
}

func (m milestoneQueries) SetProjectStatus(ctx context.Context, id int64, status model.ProjectStatus) error {
	return m.projects.SetStatus(ctx, id, status)
}

func (m milestoneQueries) EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	return outbox.InsertEventInTx(ctx, m.q, m.events, aggregateType, &aggregateID, routingKey, payload)
}
