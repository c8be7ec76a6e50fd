package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contracthub/internal/apperr"
	"contracthub/internal/model"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationReader interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) (bool, error)
}

type NotificationHandler struct {
	repo   NotificationReader
	logger *zap.Logger
}

func NewNotificationHandler(repo NotificationReader, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{repo: repo, logger: logger}
}

// List handles GET /notifications?limit=
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	items, err := h.repo.ListByUser(c.Request.Context(), actor.ID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	updated, err := h.repo.MarkRead(c.Request.Context(), actor.ID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !updated {
		respondError(c, h.logger, fmt.Errorf("notification %d: %w", id, apperr.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
