package milestone

import (
	"context"
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

const (
	companyID       int64 = 1
	contractorID    int64 = 2
	otherCompany    int64 = 3
	otherContractor int64 = 4
	adminID         int64 = 9

	projectID  int64 = 10
	contractID int64 = 20
)

var (
	company       = model.Actor{ID: companyID, Role: rbac.RoleCompany}
	contractor    = model.Actor{ID: contractorID, Role: rbac.RoleContractor}
	strangerCo    = model.Actor{ID: otherCompany, Role: rbac.RoleCompany}
	strangerContr = model.Actor{ID: otherContractor, Role: rbac.RoleContractor}
	admin         = model.Actor{ID: adminID, Role: rbac.RoleAdmin}

	fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func newTestService(store *memStore) *Service {
	s := NewService(store, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s
}

// seed builds project 10 in progress with contract 20 between company 1 and
// contractor 2.
func seed() *memStore {
	store := newMemStore()
	store.addProject(projectID, model.ProjectInProgress)
	store.addContract(model.Contract{
		ID:           contractID,
		ProjectID:    projectID,
		CompanyID:    companyID,
		ContractorID: contractorID,
	})
	return store
}

func addMS(store *memStore, id int64, amount string, status model.MilestoneStatus, order int) {
	store.addMilestone(model.Milestone{
		ID:         id,
		ContractID: contractID,
		Title:      "Milestone",
		Amount:     decimal.RequireFromString(amount),
		Order:      order,
		Status:     status,
	})
}

func transition(id int64, to model.MilestoneStatus, actor model.Actor) TransitionRequest {
	return TransitionRequest{MilestoneID: id, Status: to, Actor: actor}
}

func TestTransitionRejectsNonForwardMoves(t *testing.T) {
	for _, from := range model.MilestoneStatuses {
		for _, to := range model.MilestoneStatuses {
			if next, ok := from.Next(); ok && next == to {
				continue
			}
			store := seed()
			addMS(store, 1, "100", from, 0)

			_, err := newTestService(store).TransitionStatus(context.Background(), transition(1, to, admin))

			assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s -> %s", from, to)
			assert.Equal(t, from, store.milestones[1].Status)
			assert.Empty(t, store.events)
		}
	}
}

func TestNonBidderContractorForbiddenRegardlessOfStatus(t *testing.T) {
	for _, from := range model.MilestoneStatuses {
		for _, to := range model.MilestoneStatuses {
			store := seed()
			addMS(store, 1, "100", from, 0)

			_, err := newTestService(store).TransitionStatus(context.Background(), transition(1, to, strangerContr))

			assert.ErrorIs(t, err, apperr.ErrForbidden, "%s -> %s", from, to)
			assert.Equal(t, from, store.milestones[1].Status)
		}
	}
}

func TestNonOwnerCompanyForbidden(t *testing.T) {
	store := seed()
	addMS(store, 1, "100", model.MilestoneCompleted, 0)
	addMS(store, 2, "100", model.MilestoneVerified, 1)
	svc := newTestService(store)

	_, err := svc.TransitionStatus(context.Background(), transition(1, model.MilestoneVerified, strangerCo))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.TransitionStatus(context.Background(), transition(2, model.MilestonePaid, strangerCo))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Equal(t, model.MilestoneCompleted, store.milestones[1].Status)
	assert.Equal(t, model.MilestoneVerified, store.milestones[2].Status)
}

func TestRoleMatrixEnforcedForParties(t *testing.T) {
	tests := []struct {
		name  string
		from  model.MilestoneStatus
		to    model.MilestoneStatus
		actor model.Actor
		want  error
	}{
		{"contractor completes", model.MilestonePending, model.MilestoneCompleted, contractor, nil},
		{"contractor cannot verify", model.MilestoneCompleted, model.MilestoneVerified, contractor, apperr.ErrForbidden},
		{"contractor cannot pay", model.MilestoneVerified, model.MilestonePaid, contractor, apperr.ErrForbidden},
		{"company cannot complete", model.MilestonePending, model.MilestoneCompleted, company, apperr.ErrForbidden},
		{"company verifies", model.MilestoneCompleted, model.MilestoneVerified, company, nil},
		{"company pays", model.MilestoneVerified, model.MilestonePaid, company, nil},
		{"admin completes", model.MilestonePending, model.MilestoneCompleted, admin, nil},
		{"company skip is invalid", model.MilestonePending, model.MilestoneVerified, company, apperr.ErrInvalidTransition},
		{"unknown role", model.MilestonePending, model.MilestoneCompleted, model.Actor{ID: contractorID, Role: "guest"}, apperr.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seed()
			addMS(store, 1, "100", tt.from, 0)
			addMS(store, 2, "100", model.MilestonePending, 1)

			m, err := newTestService(store).TransitionStatus(context.Background(), transition(1, tt.to, tt.actor))

			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Equal(t, tt.from, store.milestones[1].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, m.Status)
			assert.Equal(t, tt.to, store.milestones[1].Status)
		})
	}
}

func TestTransitionValidation(t *testing.T) {
	store := seed()
	addMS(store, 1, "100", model.MilestonePending, 0)
	svc := newTestService(store)

	_, err := svc.TransitionStatus(context.Background(), transition(1, "done", contractor))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	bad := "not-a-url"
	req := transition(1, model.MilestoneCompleted, contractor)
	req.DeliverableURL = &bad
	_, err = svc.TransitionStatus(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, model.MilestonePending, store.milestones[1].Status)
}

func TestTransitionNotFound(t *testing.T) {
	store := seed()
	store.addMilestone(model.Milestone{ID: 5, ContractID: 999, Status: model.MilestonePending, Amount: decimal.NewFromInt(1)})
	svc := newTestService(store)

	_, err := svc.TransitionStatus(context.Background(), transition(404, model.MilestoneCompleted, contractor))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.TransitionStatus(context.Background(), transition(5, model.MilestoneCompleted, contractor))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionStampsDatesAndKeepsExtras(t *testing.T) {
	store := seed()
	addMS(store, 1, "100", model.MilestonePending, 0)
	addMS(store, 2, "100", model.MilestonePending, 1)
	svc := newTestService(store)

	url := "https://files.example.com/report.pdf"
	notes := "foundation poured"
	req := transition(1, model.MilestoneCompleted, contractor)
	req.DeliverableURL = &url
	req.Notes = &notes

	m, err := svc.TransitionStatus(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, m.CompletionDate)
	assert.Equal(t, fixedNow, *m.CompletionDate)
	assert.Nil(t, m.VerificationDate)
	assert.Nil(t, m.PaymentDate)
	assert.Equal(t, url, *m.DeliverableURL)
	assert.Equal(t, notes, *m.Notes)

	m, err = svc.TransitionStatus(context.Background(), transition(1, model.MilestoneVerified, company))
	require.NoError(t, err)
	require.NotNil(t, m.VerificationDate)
	assert.Equal(t, url, *m.DeliverableURL, "deliverable kept when not resupplied")

	ref := "TX-4411"
	req = transition(1, model.MilestonePaid, company)
	req.PaymentReference = &ref
	m, err = svc.TransitionStatus(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, m.PaymentDate)
	assert.Equal(t, ref, *m.PaymentReference)
	assert.Equal(t, *m, store.milestones[1])

	require.Len(t, store.events, 3)
	p, ok := store.events[2].payload.(mqcontracts.MilestoneStatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, "milestone:1:paid", p.EventKey)
	assert.Equal(t, "verified", p.From)
	assert.Equal(t, companyID, p.CompanyID)
	assert.Equal(t, contractorID, p.ContractorID)
}

func TestTransitionLostRaceIsInvalid(t *testing.T) {
	store := seed()
	addMS(store, 1, "100", model.MilestoneVerified, 0)
	store.beforeStatusUpdate = func(s *memStore, id int64) {
		m := s.milestones[id]
		m.Status = model.MilestonePaid
		s.milestones[id] = m
		s.beforeStatusUpdate = nil
	}

	_, err := newTestService(store).TransitionStatus(context.Background(), transition(1, model.MilestonePaid, company))

	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Empty(t, store.events)
	assert.Equal(t, model.ContractActive, store.contracts[contractID].Status)
}

func TestPayingFirstOfTwoKeepsContractActive(t *testing.T) {
	store := seed()
	addMS(store, 1, "1000", model.MilestoneVerified, 0)
	addMS(store, 2, "500", model.MilestonePending, 1)
	svc := newTestService(store)

	m, err := svc.TransitionStatus(context.Background(), transition(1, model.MilestonePaid, company))
	require.NoError(t, err)

	assert.Equal(t, model.MilestonePaid, m.Status)
	require.NotNil(t, m.PaymentDate)
	assert.Equal(t, model.ContractActive, store.contracts[contractID].Status)
	assert.Equal(t, model.ProjectInProgress, store.projects[projectID])

	view, err := svc.ListByContract(context.Background(), contractID, company)
	require.NoError(t, err)
	assert.Equal(t, "1000", view.Summary.PaidAmount.String())
	assert.Equal(t, "1500", view.Summary.TotalAmount.String())
	assert.Equal(t, []string{mqcontracts.RoutingMilestoneStatusChanged}, store.routingKeys())
}

func TestLastPaymentCompletesContractAndProject(t *testing.T) {
	store := seed()
	addMS(store, 1, "1000", model.MilestoneVerified, 0)
	addMS(store, 2, "500", model.MilestonePending, 1)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.TransitionStatus(ctx, transition(1, model.MilestonePaid, company))
	require.NoError(t, err)

	_, err = svc.TransitionStatus(ctx, transition(2, model.MilestoneCompleted, contractor))
	require.NoError(t, err)
	_, err = svc.TransitionStatus(ctx, transition(2, model.MilestoneVerified, company))
	require.NoError(t, err)
	assert.Equal(t, model.ContractActive, store.contracts[contractID].Status)

	_, err = svc.TransitionStatus(ctx, transition(2, model.MilestonePaid, company))
	require.NoError(t, err)

	assert.Equal(t, model.ContractCompleted, store.contracts[contractID].Status)
	assert.Equal(t, model.ProjectCompleted, store.projects[projectID])
	assert.Equal(t, []string{
		mqcontracts.RoutingMilestoneStatusChanged,
		mqcontracts.RoutingMilestoneStatusChanged,
		mqcontracts.RoutingMilestoneStatusChanged,
		mqcontracts.RoutingMilestoneStatusChanged,
		mqcontracts.RoutingContractCompleted,
		mqcontracts.RoutingProjectCompleted,
	}, store.routingKeys())

	done, ok := store.events[4].payload.(mqcontracts.ContractCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, "1500", done.TotalAmount)
	assert.Equal(t, "contract:20:completed", done.EventKey)
}

func TestProjectStaysOpenWithAnotherActiveContract(t *testing.T) {
	store := seed()
	store.addContract(model.Contract{ID: 21, ProjectID: projectID, CompanyID: companyID, ContractorID: otherContractor})
	addMS(store, 1, "300", model.MilestoneVerified, 0)

	_, err := newTestService(store).TransitionStatus(context.Background(), transition(1, model.MilestonePaid, admin))
	require.NoError(t, err)

	assert.Equal(t, model.ContractCompleted, store.contracts[contractID].Status)
	assert.Equal(t, model.ContractActive, store.contracts[21].Status)
	assert.Equal(t, model.ProjectInProgress, store.projects[projectID])
	assert.Equal(t, []string{
		mqcontracts.RoutingMilestoneStatusChanged,
		mqcontracts.RoutingContractCompleted,
	}, store.routingKeys())
}

func TestCascadeFailureRollsBackTransition(t *testing.T) {
	store := seed()
	delete(store.projects, projectID)
	addMS(store, 1, "300", model.MilestoneVerified, 0)

	_, err := newTestService(store).TransitionStatus(context.Background(), transition(1, model.MilestonePaid, company))

	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, model.MilestoneVerified, store.milestones[1].Status)
	assert.Equal(t, model.ContractActive, store.contracts[contractID].Status)
	assert.Empty(t, store.events)
}

func TestCreate(t *testing.T) {
	store := seed()
	svc := newTestService(store)
	due := fixedNow.Add(14 * 24 * time.Hour)

	m, err := svc.Create(context.Background(), CreateRequest{
		ContractID:  contractID,
		Title:       "Framing",
		Description: "Frame all exterior walls",
		Amount:      decimal.RequireFromString("2500.50"),
		DueDate:     &due,
		Order:       0,
		Actor:       company,
	})
	require.NoError(t, err)

	assert.NotZero(t, m.ID)
	assert.Equal(t, model.MilestonePending, m.Status)
	assert.Nil(t, m.CompletionDate)
	assert.Nil(t, m.VerificationDate)
	assert.Nil(t, m.PaymentDate)
	assert.Equal(t, *m, store.milestones[m.ID])
}

func TestCreateRejections(t *testing.T) {
	valid := func() CreateRequest {
		return CreateRequest{
			ContractID: contractID,
			Title:      "Roofing",
			Amount:     decimal.NewFromInt(100),
			Order:      1,
			Actor:      admin,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
		want   error
	}{
		{"contractor", func(r *CreateRequest) { r.Actor = contractor }, apperr.ErrForbidden},
		{"other company", func(r *CreateRequest) { r.Actor = strangerCo }, apperr.ErrForbidden},
		{"unknown contract", func(r *CreateRequest) { r.ContractID = 404 }, apperr.ErrNotFound},
		{"zero amount", func(r *CreateRequest) { r.Amount = decimal.Zero }, apperr.ErrValidation},
		{"negative amount", func(r *CreateRequest) { r.Amount = decimal.NewFromInt(-1) }, apperr.ErrValidation},
		{"negative order", func(r *CreateRequest) { r.Order = -1 }, apperr.ErrValidation},
		{"order beyond int4", func(r *CreateRequest) { r.Order = 3_000_000_000 }, apperr.ErrValidation},
		{"sub-cent amount", func(r *CreateRequest) { r.Amount = decimal.RequireFromString("0.001") }, apperr.ErrValidation},
		{"three decimal amount", func(r *CreateRequest) { r.Amount = decimal.RequireFromString("1.005") }, apperr.ErrValidation},
		{"amount too large", func(r *CreateRequest) { r.Amount = decimal.New(1, 12) }, apperr.ErrValidation},
		{"short title", func(r *CreateRequest) { r.Title = "ab" }, apperr.ErrValidation},
		{"short description", func(r *CreateRequest) { r.Description = "too short" }, apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seed()
			req := valid()
			tt.mutate(&req)

			_, err := newTestService(store).Create(context.Background(), req)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.milestones)
		})
	}
}

func TestCreateOnCompletedContract(t *testing.T) {
	store := seed()
	c := store.contracts[contractID]
	c.Status = model.ContractCompleted
	store.contracts[contractID] = c

	_, err := newTestService(store).Create(context.Background(), CreateRequest{
		ContractID: contractID,
		Title:      "Late extra",
		Amount:     decimal.NewFromInt(10),
		Actor:      company,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateDetails(t *testing.T) {
	store := seed()
	addMS(store, 1, "100", model.MilestonePending, 0)
	addMS(store, 2, "100", model.MilestoneCompleted, 1)
	svc := newTestService(store)

	title := "Electrical rough-in"
	amount := decimal.RequireFromString("180")
	m, err := svc.UpdateDetails(context.Background(), UpdateRequest{MilestoneID: 1, Title: &title, Amount: &amount, Actor: company})
	require.NoError(t, err)
	assert.Equal(t, title, m.Title)
	assert.True(t, store.milestones[1].Amount.Equal(amount))

	_, err = svc.UpdateDetails(context.Background(), UpdateRequest{MilestoneID: 2, Title: &title, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = svc.UpdateDetails(context.Background(), UpdateRequest{MilestoneID: 1, Title: &title, Actor: contractor})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	zero := decimal.Zero
	_, err = svc.UpdateDetails(context.Background(), UpdateRequest{MilestoneID: 1, Amount: &zero, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	fraction := decimal.RequireFromString("180.005")
	_, err = svc.UpdateDetails(context.Background(), UpdateRequest{MilestoneID: 1, Amount: &fraction, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	order := 1 << 31
	_, err = svc.UpdateDetails(context.Background(), UpdateRequest{MilestoneID: 1, Order: &order, Actor: company})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.True(t, store.milestones[1].Amount.Equal(amount))
}

func TestListAndGetVisibility(t *testing.T) {
	store := seed()
	addMS(store, 1, "100", model.MilestonePending, 2)
	addMS(store, 2, "100", model.MilestoneVerified, 0)
	addMS(store, 3, "100", model.MilestoneVerified, 1)
	addMS(store, 4, "100", model.MilestonePending, 3)
	svc := newTestService(store)

	view, err := svc.ListByContract(context.Background(), contractID, contractor)
	require.NoError(t, err)
	require.Len(t, view.Milestones, 4)
	assert.Equal(t, []int64{2, 3, 1, 4}, []int64{
		view.Milestones[0].ID, view.Milestones[1].ID, view.Milestones[2].ID, view.Milestones[3].ID,
	})
	assert.Equal(t, 50.0, view.Summary.ProgressPercent)

	_, err = svc.ListByContract(context.Background(), contractID, strangerCo)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Get(context.Background(), 1, strangerContr)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	m, err := svc.Get(context.Background(), 1, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)
}
