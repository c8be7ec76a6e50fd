// Package milestone implements the milestone lifecycle of a contract:
// creation, forward-only status transitions gated by role and ownership,
// and the contract/project completion cascade once everything is paid.
package milestone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	mqcontracts "contracthub/contracts/mq"
	"contracthub/internal/apperr"
	"contracthub/internal/model"
	"contracthub/internal/validate"
	"contracthub/pkg/logger"
	"contracthub/pkg/metrics"
	"contracthub/pkg/otel"
)

type CreateRequest struct {
	ContractID  int64           `json:"-"`
	Title       string          `json:"title" validate:"required,min=3,max=200"`
	Description string          `json:"description" validate:"omitempty,min=10"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"dueDate"`
	Order       int             `json:"order" validate:"min=0,max=2147483647"`
	Actor       model.Actor     `json:"-"`
}

// UpdateRequest edits a pending milestone; nil fields are left unchanged.
type UpdateRequest struct {
	MilestoneID int64            `json:"-"`
	Title       *string          `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string          `json:"description" validate:"omitempty,min=10"`
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *time.Time       `json:"dueDate"`
	Order       *int             `json:"order" validate:"omitempty,min=0,max=2147483647"`
	Actor       model.Actor      `json:"-"`
}

type TransitionRequest struct {
	MilestoneID      int64                 `json:"-"`
	Status           model.MilestoneStatus `json:"status" validate:"required,oneof=pending completed verified paid"`
	Notes            *string               `json:"notes" validate:"omitempty,max=2000"`
	DeliverableURL   *string               `json:"deliverableUrl" validate:"omitempty,http_url"`
	PaymentReference *string               `json:"paymentReference" validate:"omitempty,max=255"`
	Actor            model.Actor           `json:"-"`
}

// ContractMilestones is a contract with its ordered milestones and their summary.
type ContractMilestones struct {
	Contract   *model.Contract   `json:"contract"`
	Milestones []model.Milestone `json:"milestones"`
	Summary    Summary           `json:"summary"`
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a pending milestone to an active contract.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Milestone, error) {
	ctx, span := otel.StartSpan(ctx, "milestone.create")
	defer span.End()
	span.SetAttributes(attribute.Int64("contract.id", req.ContractID))

	contract, err := s.store.GetContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(req.Actor, contract); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := validate.Money("amount", req.Amount); err != nil {
		return nil, err
	}
	if contract.Status != model.ContractActive {
		return nil, fmt.Errorf("%w: contract %d is %s", apperr.ErrValidation, contract.ID, contract.Status)
	}

	now := s.now()
	m := &model.Milestone{
		ContractID:  contract.ID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
		Order:       req.Order,
		Status:      model.MilestonePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertMilestone(ctx, m); err != nil {
		otel.Fail(span, err)
		return nil, fmt.Errorf("insert milestone: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Milestone created",
		zap.Int64("milestone_id", m.ID),
		zap.Int64("contract_id", contract.ID),
		zap.Int64("actor_id", req.Actor.ID),
		zap.String("amount", m.Amount.String()),
	)
	return m, nil
}

// Get returns one milestone to a party of its contract or an admin.
func (s *Service) Get(ctx context.Context, id int64, actor model.Actor) (*model.Milestone, error) {
	m, err := s.store.GetMilestone(ctx, id)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, m.ContractID)
	if err != nil {
		return nil, err
	}
	if err := authorizeViewer(actor, contract); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByContract returns the contract, its milestones ordered by order, and
// the progress summary.
func (s *Service) ListByContract(ctx context.Context, contractID int64, actor model.Actor) (*ContractMilestones, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := authorizeViewer(actor, contract); err != nil {
		return nil, err
	}
	milestones, err := s.store.ListMilestones(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	if milestones == nil {
		milestones = []model.Milestone{}
	}
	return &ContractMilestones{
		Contract:   contract,
		Milestones: milestones,
		Summary:    Summarize(milestones),
	}, nil
}

// UpdateDetails edits title, description, amount, due date and order while
// the milestone is still pending.
func (s *Service) UpdateDetails(ctx context.Context, req UpdateRequest) (*model.Milestone, error) {
	ctx, span := otel.StartSpan(ctx, "milestone.update")
	defer span.End()
	span.SetAttributes(attribute.Int64("milestone.id", req.MilestoneID))

	m, err := s.store.GetMilestone(ctx, req.MilestoneID)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, m.ContractID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(req.Actor, contract); err != nil {
		return nil, err
	}
	if m.Status != model.MilestonePending {
		return nil, fmt.Errorf("%w: milestone %d is %s, only pending milestones can be edited",
			apperr.ErrInvalidTransition, m.ID, m.Status)
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	updated := *m
	if req.Title != nil {
		updated.Title = *req.Title
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Amount != nil {
		if err := validate.Money("amount", *req.Amount); err != nil {
			return nil, err
		}
		updated.Amount = *req.Amount
	}
	if req.DueDate != nil {
		updated.DueDate = req.DueDate
	}
	if req.Order != nil {
		updated.Order = *req.Order
	}
	updated.UpdatedAt = s.now()

	ok, err := s.store.UpdateMilestoneDetails(ctx, &updated)
	if err != nil {
		otel.Fail(span, err)
		return nil, fmt.Errorf("update milestone: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: milestone %d left pending concurrently", apperr.ErrInvalidTransition, m.ID)
	}
	return &updated, nil
}

// TransitionStatus moves a milestone one step forward. The status update, the
// outbox events and any completion cascade commit together.
func (s *Service) TransitionStatus(ctx context.Context, req TransitionRequest) (*model.Milestone, error) {
	ctx, span := otel.StartSpan(ctx, "milestone.transition")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("milestone.id", req.MilestoneID),
		attribute.String("milestone.to", string(req.Status)),
		attribute.String("actor.role", string(req.Actor.Role)),
	)

	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("milestone_id", req.MilestoneID),
		zap.String("to", string(req.Status)),
		zap.Int64("actor_id", req.Actor.ID),
		zap.String("actor_role", string(req.Actor.Role)),
	)

	var (
		from    model.MilestoneStatus
		updated *model.Milestone
		result  cascadeResult
	)

	err := validate.Struct(req)
	if err == nil {
		err = s.store.WithinTx(ctx, func(q Queries) error {
			m, err := q.GetMilestone(ctx, req.MilestoneID)
			if err != nil {
				return err
			}
			from = m.Status

			contract, err := q.GetContract(ctx, m.ContractID)
			if err != nil {
				return err
			}
			if err := authorizeTransition(req.Actor, contract, m.Status, req.Status); err != nil {
				return err
			}

			now := s.now()
			next := *m
			applyTransition(&next, req, now)

			ok, err := q.UpdateMilestoneStatus(ctx, &next, from)
			if err != nil {
				return fmt.Errorf("update milestone status: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: milestone %d is no longer %s", apperr.ErrInvalidTransition, m.ID, from)
			}

			if err := q.EnqueueEvent(ctx, mqcontracts.AggregateMilestone, next.ID,
				mqcontracts.RoutingMilestoneStatusChanged, statusChangedPayload(&next, contract, from, req.Actor)); err != nil {
				return fmt.Errorf("enqueue status event: %w", err)
			}

			if next.Status == model.MilestonePaid {
				result, err = s.cascade(ctx, q, contract, now)
				if err != nil {
					return err
				}
			}

			updated = &next
			return nil
		})
	}

	metrics.RecordTransition(string(from), string(req.Status), resultLabel(err))
	if err != nil {
		otel.Fail(span, err)
		if isClientError(err) {
			log.Info("Milestone transition rejected", zap.String("from", string(from)), zap.Error(err))
		} else {
			log.Error("Milestone transition failed", zap.String("from", string(from)), zap.Error(err))
		}
		return nil, err
	}

	if result.contractCompleted {
		metrics.IncrementCompletion(mqcontracts.AggregateContract)
	}
	if result.projectCompleted {
		metrics.IncrementCompletion(mqcontracts.AggregateProject)
	}

	log.Info("Milestone transitioned",
		zap.String("from", string(from)),
		zap.Int64("contract_id", updated.ContractID),
		zap.Bool("contract_completed", result.contractCompleted),
		zap.Bool("project_completed", result.projectCompleted),
	)
	return updated, nil
}

type cascadeResult struct {
	contractCompleted bool
	projectCompleted  bool
}

// cascade completes the contract once every milestone is paid, and the
// project once it has no active contract left.
func (s *Service) cascade(ctx context.Context, q Queries, locked *model.Contract, now time.Time) (cascadeResult, error) {
	var res cascadeResult

	contract, err := q.LockContract(ctx, locked.ID)
	if err != nil {
		return res, fmt.Errorf("lock contract: %w", err)
	}
	milestones, err := q.ListMilestones(ctx, contract.ID)
	if err != nil {
		return res, fmt.Errorf("list milestones: %w", err)
	}
	if !allPaid(milestones) || contract.Status == model.ContractCompleted {
		return res, nil
	}

	if err := q.SetContractStatus(ctx, contract.ID, model.ContractCompleted); err != nil {
		return res, fmt.Errorf("complete contract: %w", err)
	}
	res.contractCompleted = true

	summary := Summarize(milestones)
	if err := q.EnqueueEvent(ctx, mqcontracts.AggregateContract, contract.ID, mqcontracts.RoutingContractCompleted,
		mqcontracts.ContractCompletedPayload{
			EventKey:     mqcontracts.ContractCompletedEventKey(contract.ID),
			ContractID:   contract.ID,
			ProjectID:    contract.ProjectID,
			CompanyID:    contract.CompanyID,
			ContractorID: contract.ContractorID,
			TotalAmount:  summary.TotalAmount.String(),
			CompletedAt:  now,
		}); err != nil {
		return res, fmt.Errorf("enqueue contract event: %w", err)
	}

	if err := q.LockProject(ctx, contract.ProjectID); err != nil {
		return res, fmt.Errorf("lock project: %w", err)
	}
	active, err := q.CountActiveContracts(ctx, contract.ProjectID)
	if err != nil {
		return res, fmt.Errorf("count active contracts: %w", err)
	}
	if active > 0 {
		return res, nil
	}

	if err := q.SetProjectStatus(ctx, contract.ProjectID, model.ProjectCompleted); err != nil {
		return res, fmt.Errorf("complete project: %w", err)
	}
	res.projectCompleted = true

	if err := q.EnqueueEvent(ctx, mqcontracts.AggregateProject, contract.ProjectID, mqcontracts.RoutingProjectCompleted,
		mqcontracts.ProjectCompletedPayload{
			EventKey:     mqcontracts.ProjectCompletedEventKey(contract.ProjectID),
			ProjectID:    contract.ProjectID,
			CompanyID:    contract.CompanyID,
			ContractorID: contract.ContractorID,
			CompletedAt:  now,
		}); err != nil {
		return res, fmt.Errorf("enqueue project event: %w", err)
	}
	return res, nil
}

// applyTransition sets the new status, stamps the date of the entered status
// and keeps notes, deliverable url and payment reference when supplied.
func applyTransition(m *model.Milestone, req TransitionRequest, now time.Time) {
	m.Status = req.Status
	m.UpdatedAt = now

	switch req.Status {
	case model.MilestoneCompleted:
		m.CompletionDate = &now
	case model.MilestoneVerified:
		m.VerificationDate = &now
	case model.MilestonePaid:
		m.PaymentDate = &now
	}

	if req.Notes != nil {
		m.Notes = req.Notes
	}
	if req.DeliverableURL != nil {
		m.DeliverableURL = req.DeliverableURL
	}
	if req.PaymentReference != nil {
		m.PaymentReference = req.PaymentReference
	}
}

func statusChangedPayload(m *model.Milestone, c *model.Contract, from model.MilestoneStatus, actor model.Actor) mqcontracts.MilestoneStatusChangedPayload {
	return mqcontracts.MilestoneStatusChangedPayload{
		EventKey:     mqcontracts.MilestoneEventKey(m.ID, string(m.Status)),
		MilestoneID:  m.ID,
		ContractID:   c.ID,
		ProjectID:    c.ProjectID,
		CompanyID:    c.CompanyID,
		ContractorID: c.ContractorID,
		Title:        m.Title,
		Amount:       m.Amount.String(),
		From:         string(from),
		To:           string(m.Status),
		ActorID:      actor.ID,
		ActorRole:    string(actor.Role),
		ChangedAt:    m.UpdatedAt,
	}
}

func isClientError(err error) bool {
	return errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrForbidden) ||
		errors.Is(err, apperr.ErrInvalidTransition)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrValidation):
		return "validation"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
