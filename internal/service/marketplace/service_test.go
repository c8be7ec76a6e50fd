package marketplace

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "contracthub/contracts/mq"
	"contracthub/internal/apperr"
	"contracthub/internal/model"
	"contracthub/pkg/rbac"
)

type fakeStore struct {
	projects  map[int64]*model.Project
	bids      map[int64]*model.Bid
	contracts []*model.Contract
	events    []string
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: map[int64]*model.Project{},
		bids:     map[int64]*model.Bid{},
		nextID:   100,
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) CreateProject(_ context.Context, p *model.Project) error {
	p.ID = s.id()
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *fakeStore) GetProject(_ context.Context, id int64) (*model.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) ListProjects(_ context.Context, _ model.ProjectFilter) ([]model.Project, error) {
	var out []model.Project
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) ListProjectsByCompany(_ context.Context, companyID int64) ([]model.Project, error) {
	var out []model.Project
	for _, p := range s.projects {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateBid(_ context.Context, b *model.Bid) error {
	b.ID = s.id()
	cp := *b
	s.bids[b.ID] = &cp
	return nil
}

func (s *fakeStore) ListBidsByProject(_ context.Context, projectID int64) ([]model.Bid, error) {
	var out []model.Bid
	for _, b := range s.bids {
		if b.ProjectID == projectID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) BidSummary(_ context.Context, projectID int64) (*model.BidSummary, error) {
	sum := &model.BidSummary{AverageBid: decimal.Zero}
	total := decimal.Zero
	for _, b := range s.bids {
		if b.ProjectID == projectID {
			sum.Count++
			total = total.Add(b.Amount)
		}
	}
	if sum.Count > 0 {
		sum.AverageBid = total.Div(decimal.NewFromInt(int64(sum.Count))).Round(2)
	}
	return sum, nil
}

func (s *fakeStore) ListBidsByContractor(_ context.Context, contractorID int64) ([]model.Bid, error) {
	var out []model.Bid
	for _, b := range s.bids {
		if b.ContractorID == contractorID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) ListContractsByParty(_ context.Context, userID int64) ([]model.Contract, error) {
	var out []model.Contract
	for _, c := range s.contracts {
		if c.IsParty(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeStore) WithinTx(_ context.Context, fn func(q TxQueries) error) error {
	return fn(s)
}

func (s *fakeStore) LockBid(ctx context.Context, id int64) (*model.Bid, error) {
	b, ok := s.bids[id]
	if !ok {
		return nil, fmt.Errorf("bid %d: %w", id, apperr.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) LockProject(ctx context.Context, id int64) (*model.Project, error) {
	return s.GetProject(ctx, id)
}

func (s *fakeStore) SetBidStatus(_ context.Context, id int64, status model.BidStatus) error {
	s.bids[id].Status = status
	return nil
}

func (s *fakeStore) RejectOtherBids(_ context.Context, projectID, keepID int64) (int64, error) {
	var n int64
	for _, b := range s.bids {
		if b.ProjectID == projectID && b.ID != keepID && b.Status == model.BidPending {
			b.Status = model.BidRejected
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CreateContract(_ context.Context, c *model.Contract) error {
	c.ID = s.id()
	cp := *c
	s.contracts = append(s.contracts, &cp)
	return nil
}

func (s *fakeStore) SetProjectStatus(_ context.Context, id int64, status model.ProjectStatus) error {
	s.projects[id].Status = status
	return nil
}

func (s *fakeStore) EnqueueEvent(_ context.Context, _ string, _ int64, routingKey string, _ any) error {
	s.events = append(s.events, routingKey)
	return nil
}

var (
	company    = model.Actor{ID: 1, Role: rbac.RoleCompany}
	otherCo    = model.Actor{ID: 3, Role: rbac.RoleCompany}
	contractor = model.Actor{ID: 2, Role: rbac.RoleContractor}
	rival      = model.Actor{ID: 4, Role: rbac.RoleContractor}
	admin      = model.Actor{ID: 9, Role: rbac.RoleAdmin}
)

func validProject() CreateProjectRequest {
	return CreateProjectRequest{
		Title:       "Warehouse rewiring",
		Description: "Replace all wiring in the north warehouse",
		Category:    "electrical",
		Location:    "Leeds",
		BudgetMin:   decimal.NewFromInt(5000),
		BudgetMax:   decimal.NewFromInt(8000),
		Actor:       company,
	}
}

func TestCreateProject(t *testing.T) {
	svc := NewService(newFakeStore(), zap.NewNop())

	p, err := svc.CreateProject(context.Background(), validProject())
	require.NoError(t, err)
	assert.Equal(t, model.ProjectOpen, p.Status)
	assert.Equal(t, company.ID, p.CompanyID)
}

func TestCreateProjectRejections(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		mutate func(r *CreateProjectRequest)
		want   error
	}{
		{"contractor", func(r *CreateProjectRequest) { r.Actor = contractor }, apperr.ErrForbidden},
		{"short title", func(r *CreateProjectRequest) { r.Title = "Wire" }, apperr.ErrValidation},
		{"short description", func(r *CreateProjectRequest) { r.Description = "Rewire it" }, apperr.ErrValidation},
		{"unknown category", func(r *CreateProjectRequest) { r.Category = "gardening" }, apperr.ErrValidation},
		{"zero budget", func(r *CreateProjectRequest) { r.BudgetMin = decimal.Zero }, apperr.ErrValidation},
		{"sub-cent budget", func(r *CreateProjectRequest) { r.BudgetMin = decimal.RequireFromString("0.001") }, apperr.ErrValidation},
		{"budget too large", func(r *CreateProjectRequest) { r.BudgetMax = decimal.New(1, 12) }, apperr.ErrValidation},
		{"inverted budget", func(r *CreateProjectRequest) { r.BudgetMax = decimal.NewFromInt(100) }, apperr.ErrValidation},
		{"end before start", func(r *CreateProjectRequest) { r.StartDate, r.EndDate = &start, &end }, apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			req := validProject()
			tt.mutate(&req)

			_, err := NewService(store, zap.NewNop()).CreateProject(context.Background(), req)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.projects)
		})
	}
}

func seedProject(t *testing.T, svc *Service) *model.Project {
	t.Helper()
	p, err := svc.CreateProject(context.Background(), validProject())
	require.NoError(t, err)
	return p
}

func bid(projectID int64, amount int64, actor model.Actor) CreateBidRequest {
	return CreateBidRequest{
		ProjectID:    projectID,
		Amount:       decimal.NewFromInt(amount),
		Description:  "Certified crew, four weeks",
		DeliveryTime: "4 weeks",
		Actor:        actor,
	}
}

func TestCreateBid(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, zap.NewNop())
	p := seedProject(t, svc)

	b, err := svc.CreateBid(context.Background(), bid(p.ID, 6000, contractor))
	require.NoError(t, err)
	assert.Equal(t, model.BidPending, b.Status)
	assert.Equal(t, contractor.ID, b.ContractorID)

	_, err = svc.CreateBid(context.Background(), bid(p.ID, 6000, company))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.CreateBid(context.Background(), bid(p.ID, 0, contractor))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	fractional := bid(p.ID, 6000, contractor)
	fractional.Amount = decimal.RequireFromString("5999.995")
	_, err = svc.CreateBid(context.Background(), fractional)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateBid(context.Background(), bid(404, 6000, contractor))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	store.projects[p.ID].Status = model.ProjectInProgress
	_, err = svc.CreateBid(context.Background(), bid(p.ID, 6000, rival))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProjectBidsVisibility(t *testing.T) {
	svc := NewService(newFakeStore(), zap.NewNop())
	p := seedProject(t, svc)
	_, err := svc.CreateBid(context.Background(), bid(p.ID, 6000, contractor))
	require.NoError(t, err)
	_, err = svc.CreateBid(context.Background(), bid(p.ID, 7000, rival))
	require.NoError(t, err)

	owner, err := svc.ProjectBids(context.Background(), p.ID, company)
	require.NoError(t, err)
	assert.Len(t, owner.Bids, 2)
	assert.Nil(t, owner.Summary)

	other, err := svc.ProjectBids(context.Background(), p.ID, contractor)
	require.NoError(t, err)
	assert.Nil(t, other.Bids)
	require.NotNil(t, other.Summary)
	assert.Equal(t, 2, other.Summary.Count)
	assert.Equal(t, "6500", other.Summary.AverageBid.String())

	stranger, err := svc.ProjectBids(context.Background(), p.ID, otherCo)
	require.NoError(t, err)
	assert.NotNil(t, stranger.Summary)

	anon, err := svc.ProjectBids(context.Background(), p.ID, model.Actor{})
	require.NoError(t, err)
	assert.Nil(t, anon.Bids)
	require.NotNil(t, anon.Summary)
	assert.Equal(t, 2, anon.Summary.Count)
}

func TestContractorBidsSelfOnly(t *testing.T) {
	svc := NewService(newFakeStore(), zap.NewNop())

	_, err := svc.ContractorBids(context.Background(), contractor.ID, rival)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.ContractorBids(context.Background(), contractor.ID, contractor)
	assert.NoError(t, err)

	_, err = svc.ContractorBids(context.Background(), contractor.ID, admin)
	assert.NoError(t, err)
}

func TestAcceptBidFormsContract(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, zap.NewNop())
	p := seedProject(t, svc)
	winner, err := svc.CreateBid(context.Background(), bid(p.ID, 6000, contractor))
	require.NoError(t, err)
	loser, err := svc.CreateBid(context.Background(), bid(p.ID, 7000, rival))
	require.NoError(t, err)

	d, err := svc.DecideBid(context.Background(), DecideBidRequest{BidID: winner.ID, Status: model.BidAccepted, Actor: company})
	require.NoError(t, err)

	require.NotNil(t, d.Contract)
	assert.Equal(t, model.ContractActive, d.Contract.Status)
	assert.Equal(t, company.ID, d.Contract.CompanyID)
	assert.Equal(t, contractor.ID, d.Contract.ContractorID)
	assert.Equal(t, model.BidAccepted, store.bids[winner.ID].Status)
	assert.Equal(t, model.BidRejected, store.bids[loser.ID].Status)
	assert.Equal(t, model.ProjectInProgress, store.projects[p.ID].Status)
	assert.Equal(t, []string{mqcontracts.RoutingContractCreated}, store.events)

	_, err = svc.DecideBid(context.Background(), DecideBidRequest{BidID: loser.ID, Status: model.BidAccepted, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestDecideBidRejections(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, zap.NewNop())
	p := seedProject(t, svc)
	b, err := svc.CreateBid(context.Background(), bid(p.ID, 6000, contractor))
	require.NoError(t, err)

	_, err = svc.DecideBid(context.Background(), DecideBidRequest{BidID: b.ID, Status: model.BidAccepted, Actor: otherCo})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.DecideBid(context.Background(), DecideBidRequest{BidID: b.ID, Status: model.BidAccepted, Actor: contractor})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.DecideBid(context.Background(), DecideBidRequest{BidID: b.ID, Status: model.BidWithdrawn, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.DecideBid(context.Background(), DecideBidRequest{BidID: 404, Status: model.BidRejected, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	d, err := svc.DecideBid(context.Background(), DecideBidRequest{BidID: b.ID, Status: model.BidRejected, Actor: company})
	require.NoError(t, err)
	assert.Nil(t, d.Contract)
	assert.Equal(t, model.BidRejected, store.bids[b.ID].Status)
	assert.Equal(t, model.ProjectOpen, store.projects[p.ID].Status)
	assert.Empty(t, store.contracts)
}
