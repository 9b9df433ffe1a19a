package handler

import (
	"context"
	"net/http"
	"time"

	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/auth"
	"civictrack/backend/internal/complaint"
	"civictrack/backend/internal/config"
	"civictrack/backend/internal/hub"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/scheduler"
	"civictrack/backend/internal/sla"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Sweeper runs one SLA sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (sla.Result, error)
}

// Tasks exposes the periodic maintenance tasks to admins.
type Tasks interface {
	Status() []scheduler.TaskStatus
	RunNow(name string) (scheduler.TaskStatus, error)
}

// Handler містить посилання на сервіси, які обслуговують HTTP-запити
type Handler struct {
	Complaints    *complaint.Service
	Notifications *notification.Service
	Sweeper       Sweeper
	Audit         *audit.Log
	Issuer        *auth.Issuer
	Hub           *hub.ManagerService
	Log           *zap.Logger

	// Tasks enables the /admin/tasks endpoints when set.
	Tasks Tasks

	// DevTokens enables POST /auth/dev-token.
	DevTokens bool
	// SweepTimeout bounds an SLA sweep triggered over HTTP.
	SweepTimeout time.Duration
	now          func() time.Time
}

func NewHandler(
	complaints *complaint.Service,
	notifications *notification.Service,
	sweeper Sweeper,
	auditLog *audit.Log,
	issuer *auth.Issuer,
	h *hub.ManagerService,
	log *zap.Logger,
) *Handler {
	return &Handler{
		Complaints:    complaints,
		Notifications: notifications,
		Sweeper:       sweeper,
		Audit:         auditLog,
		Issuer:        issuer,
		Hub:           h,
		Log:           log,
		SweepTimeout:  config.DefaultSweepLockTTL,
		now:           time.Now,
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(h.Observe())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.DevTokens {
		r.POST("/auth/dev-token", h.IssueDevToken)
	}
	if h.Hub != nil {
		// The browser WebSocket API cannot set headers, so this route
		// authenticates on its own and also accepts ?token=.
		r.GET("/ws/notifications", h.ServeWebSocket)
	}

	api := r.Group("/", h.Authenticate())

	api.POST("/complaints", h.RequireRole(models.RoleCitizen), h.CreateComplaint)
	api.GET("/complaints", h.ListComplaints)
	api.GET("/complaints/:id", h.GetComplaint)
	api.POST("/complaints/:id/transition", h.RequireRole(models.RoleAdmin, models.RoleOfficer), h.TransitionComplaint)
	api.POST("/complaints/:id/feedback", h.RequireRole(models.RoleCitizen), h.SubmitFeedback)
	api.GET("/complaints/:id/feedback", h.GetFeedback)
	api.GET("/officer/feedback", h.RequireRole(models.RoleOfficer, models.RoleAdmin), h.OfficerFeedback)

	api.GET("/notifications", h.ListNotifications)
	api.GET("/notifications/unread-count", h.UnreadCount)
	api.POST("/notifications/read-all", h.MarkAllRead)
	api.POST("/notifications/:id/read", h.MarkRead)

	admin := api.Group("/admin", h.RequireRole(models.RoleAdmin))
	admin.GET("/audit-logs", h.QueryAuditLogs)
	admin.GET("/audit-logs/stats", h.AuditStats)
	admin.DELETE("/audit-logs", h.ClearAuditLogs)
	if h.Tasks != nil {
		admin.GET("/tasks", h.ListTasks)
		admin.POST("/tasks/:name/run", h.RunTask)
	}

	internal := api.Group("/internal", h.RequireRole(models.RoleAdmin))
	internal.GET("/sla/sweep", h.TriggerSweep)
	internal.POST("/sla/sweep", h.TriggerSweep)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
}
