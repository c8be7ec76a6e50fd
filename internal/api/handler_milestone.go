package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contracthub/internal/milestone"
	"contracthub/internal/model"
	"contracthub/pkg/logger"
)

type MilestoneService interface {
	Create(ctx context.Context, req milestone.CreateRequest) (*model.Milestone, error)
	Get(ctx context.Context, id int64, actor model.Actor) (*model.Milestone, error)
	ListByContract(ctx context.Context, contractID int64, actor model.Actor) (*milestone.ContractMilestones, error)
	UpdateDetails(ctx context.Context, req milestone.UpdateRequest) (*model.Milestone, error)
	TransitionStatus(ctx context.Context, req milestone.TransitionRequest) (*model.Milestone, error)
}

type MilestoneHandler struct {
	svc    MilestoneService
	logger *zap.Logger
}

func NewMilestoneHandler(svc MilestoneService, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{svc: svc, logger: logger}
}

// GetContract handles GET /contracts/:id and returns the contract with its
// milestone summary.
func (h *MilestoneHandler) GetContract(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.ListByContract(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract": res.Contract,
		"summary":  res.Summary,
	})
}

// ListByContract handles GET /contracts/:id/milestones
func (h *MilestoneHandler) ListByContract(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.ListByContract(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Create handles POST /contracts/:id/milestones
func (h *MilestoneHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req milestone.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.ContractID = id
	req.Actor = actor

	m, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"milestone": m})
}

// Get handles GET /milestones/:id
func (h *MilestoneHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	m, err := h.svc.Get(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

// Update handles PATCH /milestones/:id
func (h *MilestoneHandler) Update(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req milestone.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.MilestoneID = id
	req.Actor = actor

	m, err := h.svc.UpdateDetails(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

// UpdateStatus handles PATCH /milestones/:id/status
func (h *MilestoneHandler) UpdateStatus(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req milestone.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.MilestoneID = id
	req.Actor = actor

	logger.WithTrace(c.Request.Context(), h.logger).Debug("Milestone status change requested",
		zap.Int64("milestone_id", id),
		zap.String("to", string(req.Status)),
		zap.Int64("actor_id", actor.ID),
	)

	m, err := h.svc.TransitionStatus(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": m})
}
