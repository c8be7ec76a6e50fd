package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"contracthub/pkg/otel"
	"contracthub/pkg/rbac"
)

// Pinger reports whether a dependency is reachable; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth         *AuthHandler
	Marketplace  *MarketplaceHandler
	Milestone    *MilestoneHandler
	Notification *NotificationHandler
	Admin        *AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, db Pinger, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", h.Auth.Register)
	r.POST("/login", h.Auth.Login)
	r.GET("/projects", h.Marketplace.ListProjects)
	r.GET("/projects/:id", h.Marketplace.GetProject)
	r.GET("/projects/:id/bids", OptionalAuth(jwtSecret), h.Marketplace.ProjectBids)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/projects", RequirePermission(rbac.PermissionCreateProject), h.Marketplace.CreateProject)
		auth.GET("/companies/:id/projects", h.Marketplace.CompanyProjects)
		auth.POST("/projects/:id/bids", RequirePermission(rbac.PermissionCreateBid), h.Marketplace.CreateBid)
		auth.GET("/contractors/:id/bids", h.Marketplace.ContractorBids)
		auth.PATCH("/bids/:id/status", RequirePermission(rbac.PermissionDecideBid), h.Marketplace.DecideBid)

		auth.GET("/contracts", RequirePermission(rbac.PermissionReadContract), h.Marketplace.MyContracts)
		auth.GET("/contracts/:id", RequirePermission(rbac.PermissionReadContract), h.Milestone.GetContract)
		auth.GET("/contracts/:id/milestones", RequirePermission(rbac.PermissionReadContract), h.Milestone.ListByContract)
		auth.POST("/contracts/:id/milestones", RequirePermission(rbac.PermissionCreateMilestone), h.Milestone.Create)
		auth.GET("/milestones/:id", RequirePermission(rbac.PermissionReadContract), h.Milestone.Get)
		auth.PATCH("/milestones/:id", RequirePermission(rbac.PermissionEditMilestone), h.Milestone.Update)
		auth.PATCH("/milestones/:id/status", RequirePermission(rbac.PermissionMoveMilestone), h.Milestone.UpdateStatus)

		auth.GET("/notifications", h.Notification.List)
		auth.POST("/notifications/:id/read", h.Notification.MarkRead)

		admin := auth.Group("/admin", RequirePermission(rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}
