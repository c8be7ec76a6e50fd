// Package marketplace covers the collaborators of the milestone workflow:
// projects posted by companies, bids from contractors, and the contract
// formed when a bid is accepted.
package marketplace

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mqcontracts "contracthub/contracts/mq"
	"contracthub/internal/apperr"
	"contracthub/internal/model"
	"contracthub/internal/validate"
	"contracthub/pkg/logger"
	"contracthub/pkg/otel"
	"contracthub/pkg/rbac"
)

// Store is the read side plus a transactional entry point for bid decisions.
type Store interface {
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, f model.ProjectFilter) ([]model.Project, error)
	ListProjectsByCompany(ctx context.Context, companyID int64) ([]model.Project, error)

	CreateBid(ctx context.Context, b *model.Bid) error
	ListBidsByProject(ctx context.Context, projectID int64) ([]model.Bid, error)
	BidSummary(ctx context.Context, projectID int64) (*model.BidSummary, error)
	ListBidsByContractor(ctx context.Context, contractorID int64) ([]model.Bid, error)

	ListContractsByParty(ctx context.Context, userID int64) ([]model.Contract, error)

	WithinTx(ctx context.Context, fn func(q TxQueries) error) error
}

// TxQueries runs inside the bid decision transaction.
type TxQueries interface {
	LockBid(ctx context.Context, id int64) (*model.Bid, error)
	LockProject(ctx context.Context, id int64) (*model.Project, error)
	SetBidStatus(ctx context.Context, id int64, status model.BidStatus) error
	RejectOtherBids(ctx context.Context, projectID, keepID int64) (int64, error)
	CreateContract(ctx context.Context, c *model.Contract) error
	SetProjectStatus(ctx context.Context, id int64, status model.ProjectStatus) error
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error
}

type CreateProjectRequest struct {
	Title       string          `json:"title" validate:"required,min=5,max=200"`
	Description string          `json:"description" validate:"required,min=20"`
	Category    string          `json:"category" validate:"required"`
	Location    string          `json:"location" validate:"max=200"`
	BudgetMin   decimal.Decimal `json:"budgetMin"`
	BudgetMax   decimal.Decimal `json:"budgetMax"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
	Duration    string          `json:"duration" validate:"max=100"`
	Actor       model.Actor     `json:"-"`
}

type CreateBidRequest struct {
	ProjectID    int64           `json:"-"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description" validate:"required,min=10"`
	DeliveryTime string          `json:"deliveryTime" validate:"max=100"`
	Actor        model.Actor     `json:"-"`
}

type DecideBidRequest struct {
	BidID              int64           `json:"-"`
	Status             model.BidStatus `json:"status" validate:"required,oneof=accepted rejected"`
	TermsAndConditions string          `json:"termsAndConditions" validate:"max=10000"`
	Actor              model.Actor     `json:"-"`
}

// BidDecision is the outcome of DecideBid; Contract is set when the bid was accepted.
type BidDecision struct {
	Bid      *model.Bid      `json:"bid"`
	Contract *model.Contract `json:"contract,omitempty"`
}

// ProjectBids is either the full bid list or, for non-owners, the summary.
type ProjectBids struct {
	Bids    []model.Bid       `json:"bids,omitempty"`
	Summary *model.BidSummary `json:"summary,omitempty"`
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

func checkPermission(actor model.Actor, permission string) error {
	if err := rbac.CheckPermission(actor.ID, actor.Role, permission); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrForbidden, err)
	}
	return nil
}

func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (*model.Project, error) {
	if err := checkPermission(req.Actor, rbac.PermissionCreateProject); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if !slices.Contains(model.ProjectCategories, req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, req.Category)
	}
	if err := validate.Money("budgetMin", req.BudgetMin); err != nil {
		return nil, err
	}
	if err := validate.Money("budgetMax", req.BudgetMax); err != nil {
		return nil, err
	}
	if req.BudgetMax.LessThan(req.BudgetMin) {
		return nil, fmt.Errorf("%w: budgetMax must not be below budgetMin", apperr.ErrValidation)
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, fmt.Errorf("%w: endDate must not be before startDate", apperr.ErrValidation)
	}

	p := &model.Project{
		CompanyID:   req.Actor.ID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		BudgetMin:   req.BudgetMin,
		BudgetMax:   req.BudgetMax,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Duration:    req.Duration,
		Status:      model.ProjectOpen,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Project created",
		zap.Int64("project_id", p.ID),
		zap.Int64("company_id", p.CompanyID),
	)
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context, f model.ProjectFilter) ([]model.Project, error) {
	return s.store.ListProjects(ctx, f)
}

func (s *Service) ListProjectsByCompany(ctx context.Context, companyID int64) ([]model.Project, error) {
	return s.store.ListProjectsByCompany(ctx, companyID)
}

// CreateBid places a pending bid on an open project.
func (s *Service) CreateBid(ctx context.Context, req CreateBidRequest) (*model.Bid, error) {
	if err := checkPermission(req.Actor, rbac.PermissionCreateBid); err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status != model.ProjectOpen {
		return nil, fmt.Errorf("%w: project %d is not open for bidding", apperr.ErrValidation, project.ID)
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := validate.Money("amount", req.Amount); err != nil {
		return nil, err
	}

	b := &model.Bid{
		ProjectID:    project.ID,
		ContractorID: req.Actor.ID,
		Amount:       req.Amount,
		Description:  req.Description,
		DeliveryTime: req.DeliveryTime,
		Status:       model.BidPending,
	}
	if err := s.store.CreateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("create bid: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Bid placed",
		zap.Int64("bid_id", b.ID),
		zap.Int64("project_id", b.ProjectID),
		zap.Int64("contractor_id", b.ContractorID),
	)
	return b, nil
}

// ProjectBids returns every bid to the owning company or an admin, and only
// the count and average to everyone else.
func (s *Service) ProjectBids(ctx context.Context, projectID int64, actor model.Actor) (*ProjectBids, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if actor.Role == rbac.RoleAdmin || (actor.Role == rbac.RoleCompany && actor.ID == project.CompanyID) {
		bids, err := s.store.ListBidsByProject(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("list bids: %w", err)
		}
		return &ProjectBids{Bids: bids}, nil
	}

	summary, err := s.store.BidSummary(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bid summary: %w", err)
	}
	return &ProjectBids{Summary: summary}, nil
}

// ContractorBids lists a contractor's own bids; admins may list anyone's.
func (s *Service) ContractorBids(ctx context.Context, contractorID int64, actor model.Actor) ([]model.Bid, error) {
	if actor.Role != rbac.RoleAdmin && actor.ID != contractorID {
		return nil, fmt.Errorf("%w: contractors can only list their own bids", apperr.ErrForbidden)
	}
	return s.store.ListBidsByContractor(ctx, contractorID)
}

func (s *Service) MyContracts(ctx context.Context, actor model.Actor) ([]model.Contract, error) {
	return s.store.ListContractsByParty(ctx, actor.ID)
}

// DecideBid accepts or rejects a pending bid. Accepting forms an active
// contract, moves the project to in_progress and rejects the other pending
// bids, all in one transaction.
func (s *Service) DecideBid(ctx context.Context, req DecideBidRequest) (*BidDecision, error) {
	ctx, span := otel.StartSpan(ctx, "bid.decide")
	defer span.End()

	if err := checkPermission(req.Actor, rbac.PermissionDecideBid); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var decision BidDecision
	err := s.store.WithinTx(ctx, func(q TxQueries) error {
		bid, err := q.LockBid(ctx, req.BidID)
		if err != nil {
			return err
		}
		project, err := q.LockProject(ctx, bid.ProjectID)
		if err != nil {
			return err
		}
		if req.Actor.Role != rbac.RoleAdmin && project.CompanyID != req.Actor.ID {
			return fmt.Errorf("%w: user %d does not own project %d", apperr.ErrForbidden, req.Actor.ID, project.ID)
		}
		if bid.Status != model.BidPending {
			return fmt.Errorf("%w: bid %d is already %s", apperr.ErrInvalidTransition, bid.ID, bid.Status)
		}

		if req.Status == model.BidAccepted && project.Status != model.ProjectOpen {
			return fmt.Errorf("%w: project %d is %s", apperr.ErrInvalidTransition, project.ID, project.Status)
		}

		if err := q.SetBidStatus(ctx, bid.ID, req.Status); err != nil {
			return err
		}
		bid.Status = req.Status
		decision.Bid = bid

		if req.Status != model.BidAccepted {
			return nil
		}

		contract := &model.Contract{
			ProjectID:          project.ID,
			BidID:              bid.ID,
			CompanyID:          project.CompanyID,
			ContractorID:       bid.ContractorID,
			StartDate:          s.now(),
			TermsAndConditions: req.TermsAndConditions,
			Status:             model.ContractActive,
		}
		if err := q.CreateContract(ctx, contract); err != nil {
			return fmt.Errorf("create contract: %w", err)
		}
		if err := q.SetProjectStatus(ctx, project.ID, model.ProjectInProgress); err != nil {
			return err
		}
		if _, err := q.RejectOtherBids(ctx, project.ID, bid.ID); err != nil {
			return fmt.Errorf("reject other bids: %w", err)
		}
		decision.Contract = contract

		return q.EnqueueEvent(ctx, mqcontracts.AggregateContract, contract.ID, mqcontracts.RoutingContractCreated,
			mqcontracts.ContractCreatedPayload{
				EventKey:     mqcontracts.ContractCreatedEventKey(contract.ID),
				ContractID:   contract.ID,
				ProjectID:    project.ID,
				BidID:        bid.ID,
				CompanyID:    project.CompanyID,
				ContractorID: bid.ContractorID,
				ProjectTitle: project.Title,
				Amount:       bid.Amount.String(),
				CreatedAt:    contract.StartDate,
			})
	})
	if err != nil {
		otel.Fail(span, err)
		return nil, err
	}

	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("bid_id", decision.Bid.ID),
		zap.String("status", string(decision.Bid.Status)),
	)
	if decision.Contract != nil {
		log = log.With(zap.Int64("contract_id", decision.Contract.ID))
	}
	log.Info("Bid decided")
	return &decision, nil
}
