package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contracthub/internal/model"
	"contracthub/internal/service/marketplace"
)

type MarketplaceService interface {
	CreateProject(ctx context.Context, req marketplace.CreateProjectRequest) (*model.Project, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, f model.ProjectFilter) ([]model.Project, error)
	ListProjectsByCompany(ctx context.Context, companyID int64) ([]model.Project, error)
	CreateBid(ctx context.Context, req marketplace.CreateBidRequest) (*model.Bid, error)
	ProjectBids(ctx context.Context, projectID int64, actor model.Actor) (*marketplace.ProjectBids, error)
	ContractorBids(ctx context.Context, contractorID int64, actor model.Actor) ([]model.Bid, error)
	MyContracts(ctx context.Context, actor model.Actor) ([]model.Contract, error)
	DecideBid(ctx context.Context, req marketplace.DecideBidRequest) (*marketplace.BidDecision, error)
}

type MarketplaceHandler struct {
	svc    MarketplaceService
	logger *zap.Logger
}

func NewMarketplaceHandler(svc MarketplaceService, logger *zap.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{svc: svc, logger: logger}
}

// ListProjects handles GET /projects?category=&status=&location=
func (h *MarketplaceHandler) ListProjects(c *gin.Context) {
	f := model.ProjectFilter{
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Location: c.Query("location"),
	}

	projects, err := h.svc.ListProjects(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject handles GET /projects/:id
func (h *MarketplaceHandler) GetProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	p, err := h.svc.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": p})
}

// CreateProject handles POST /projects
func (h *MarketplaceHandler) CreateProject(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req marketplace.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.Actor = actor

	p, err := h.svc.CreateProject(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": p})
}

// CompanyProjects handles GET /companies/:id/projects
func (h *MarketplaceHandler) CompanyProjects(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	projects, err := h.svc.ListProjectsByCompany(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// CreateBid handles POST /projects/:id/bids
func (h *MarketplaceHandler) CreateBid(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req marketplace.CreateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.ProjectID = projectID
	req.Actor = actor

	bid, err := h.svc.CreateBid(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bid": bid})
}

// ProjectBids handles GET /projects/:id/bids
func (h *MarketplaceHandler) ProjectBids(c *gin.Context) {
	// 匿名请求只拿到汇总
	actor, _ := actorFromContext(c)
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.ProjectBids(c.Request.Context(), projectID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ContractorBids handles GET /contractors/:id/bids
func (h *MarketplaceHandler) ContractorBids(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	contractorID, ok := paramID(c, "id")
	if !ok {
		return
	}

	bids, err := h.svc.ContractorBids(c.Request.Context(), contractorID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

// DecideBid handles PATCH /bids/:id/status
func (h *MarketplaceHandler) DecideBid(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	bidID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req marketplace.DecideBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.BidID = bidID
	req.Actor = actor

	res, err := h.svc.DecideBid(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// MyContracts handles GET /contracts
func (h *MarketplaceHandler) MyContracts(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	contracts, err := h.svc.MyContracts(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}
