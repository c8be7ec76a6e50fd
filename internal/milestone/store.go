package milestone

import (
	"context"

	"contracthub/internal/model"
)

// Queries is the persistence surface the milestone service needs. Lookups of
// missing rows return an error wrapping apperr.ErrNotFound.
type Queries interface {
	GetMilestone(ctx context.Context, id int64) (*model.Milestone, error)
	ListMilestones(ctx context.Context, contractID int64) ([]model.Milestone, error)
	InsertMilestone(ctx context.Context, m *model.Milestone) error
	// UpdateMilestoneDetails writes the editable fields only while the row is
	// still pending and reports whether a row was updated.
	UpdateMilestoneDetails(ctx context.Context, m *model.Milestone) (bool, error)
	// UpdateMilestoneStatus is a compare-and-set on the current status. It
	// reports false when the row is no longer in status from.
	UpdateMilestoneStatus(ctx context.Context, m *model.Milestone, from model.MilestoneStatus) (bool, error)

	// GetContract returns the contract with CompanyID and ContractorID resolved.
	GetContract(ctx context.Context, id int64) (*model.Contract, error)
	// LockContract locks the contract row until the surrounding transaction
	// ends and returns its current state.
	LockContract(ctx context.Context, id int64) (*model.Contract, error)
	SetContractStatus(ctx context.Context, id int64, status model.ContractStatus) error

	LockProject(ctx context.Context, id int64) error
	CountActiveContracts(ctx context.Context, projectID int64) (int, error)
	SetProjectStatus(ctx context.Context, id int64, status model.ProjectStatus) error

	// EnqueueEvent writes an outbox row in the same transaction.
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error
}

// Store runs reads directly and multi-step writes inside one transaction.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}
