package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contracthub/internal/model"
	"contracthub/internal/service/marketplace"
	"contracthub/pkg/db"
	"contracthub/pkg/outbox"
)

// MarketplaceStore is the Postgres implementation of marketplace.Store.
type MarketplaceStore struct {
	pool      *pgxpool.Pool
	projects  *ProjectRepository
	bids      *BidRepository
	contracts *ContractRepository
	events    *outbox.Repository
}

func NewMarketplaceStore(pool *pgxpool.Pool, events *outbox.Repository) *MarketplaceStore {
	return &MarketplaceStore{
		pool:      pool,
		projects:  NewProjectRepository(pool),
		bids:      NewBidRepository(pool),
		contracts: NewContractRepository(pool),
		events:    events,
	}
}

var _ marketplace.Store = (*MarketplaceStore)(nil)

func (s *MarketplaceStore) CreateProject(ctx context.Context, p *model.Project) error {
	return s.projects.Create(ctx, p)
}

func (s *MarketplaceStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return s.projects.GetByID(ctx, id)
}

func (s *MarketplaceStore) ListProjects(ctx context.Context, f model.ProjectFilter) ([]model.Project, error) {
	return s.projects.List(ctx, f)
}

func (s *MarketplaceStore) ListProjectsByCompany(ctx context.Context, companyID int64) ([]model.Project, error) {
	return s.projects.ListByCompany(ctx, companyID)
}

func (s *MarketplaceStore) CreateBid(ctx context.Context, b *model.Bid) error {
	return s.bids.Create(ctx, b)
}

func (s *MarketplaceStore) ListBidsByProject(ctx context.Context, projectID int64) ([]model.Bid, error) {
	return s.bids.ListByProject(ctx, projectID)
}

func (s *MarketplaceStore) BidSummary(ctx context.Context, projectID int64) (*model.BidSummary, error) {
	return s.bids.SummaryByProject(ctx, projectID)
}

func (s *MarketplaceStore) ListBidsByContractor(ctx context.Context, contractorID int64) ([]model.Bid, error) {
	return s.bids.ListByContractor(ctx, contractorID)
}

func (s *MarketplaceStore) ListContractsByParty(ctx context.Context, userID int64) ([]model.Contract, error) {
	return s.contracts.ListByParty(ctx, userID)
}

func (s *MarketplaceStore) WithinTx(ctx context.Context, fn func(q marketplace.TxQueries) error) error {
	return db.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&marketplaceTx{
			q:         tx,
			projects:  s.projects.WithTx(tx),
			bids:      s.bids.WithTx(tx),
			contracts: s.contracts.WithTx(tx),
			events:    s.events,
		})
	})
}

type marketplaceTx struct {
	q         db.DBTX
	projects  *ProjectRepository
	bids      *BidRepository
	contracts *ContractRepository
	events    *outbox.Repository
}

func (t *marketplaceTx) LockBid(ctx context.Context, id int64) (*model.Bid, error) {
	return t.bids.LockByID(ctx, id)
}

func (t *marketplaceTx) LockProject(ctx context.Context, id int64) (*model.Project, error) {
	return t.projects.LockByID(ctx, id)
}

func (t *marketplaceTx) SetBidStatus(ctx context.Context, id int64, status model.BidStatus) error {
	return t.bids.SetStatus(ctx, id, status)
}

func (t *marketplaceTx) RejectOtherBids(ctx context.Context, projectID, keepID int64) (int64, error) {
	return t.bids.RejectOtherPending(ctx, projectID, keepID)
}

func (t *marketplaceTx) CreateContract(ctx context.Context, c *model.Contract) error {
	return t.contracts.Create(ctx, c)
}

func (t *marketplaceTx) SetProjectStatus(ctx context.Context, id int64, status model.ProjectStatus) error {
	return t.projects.SetStatus(ctx, id, status)
}

func (t *marketplaceTx) EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	return outbox.InsertEventInTx(ctx, t.q, t.events, aggregateType, &aggregateID, routingKey, payload)
}
