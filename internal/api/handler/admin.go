package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/config"

	"github.com/gin-gonic/gin"
)

// QueryAuditLogs handles GET /admin/audit-logs?userId&action&result&since&until&limit.
func (h *Handler) QueryAuditLogs(c *gin.Context) {
	f, err := auditFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	entries := h.Audit.Query(f)
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

func auditFilter(c *gin.Context) (audit.Filter, error) {
	f := audit.Filter{
		UserID: c.Query("userId"),
		Action: audit.Action(strings.ToUpper(c.Query("action"))),
		Result: audit.Result(strings.ToUpper(c.Query("result"))),
		Limit:  config.DefaultAuditQueryCap,
	}
	switch f.Action {
	case "", audit.ActionPermissionCheck, audit.ActionRoleCheck, audit.ActionResourceAccess, audit.ActionAPIAccess:
	default:
		return f, apperr.New(apperr.ValidationError, "unknown action")
	}
	switch f.Result {
	case "", audit.ResultAllowed, audit.ResultDenied:
	default:
		return f, apperr.New(apperr.ValidationError, "unknown result")
	}

	var err error
	if f.Since, err = parseTime(c.Query("since")); err != nil {
		return f, apperr.Wrap(apperr.ValidationError, "since must be an RFC 3339 timestamp", err)
	}
	if f.Until, err = parseTime(c.Query("until")); err != nil {
		return f, apperr.Wrap(apperr.ValidationError, "until must be an RFC 3339 timestamp", err)
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, apperr.New(apperr.ValidationError, "limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) AuditStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Audit.Statistics())
}

func (h *Handler) ClearAuditLogs(c *gin.Context) {
	who, _ := identityFrom(c)
	n, err := h.Audit.Clear(who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cleared": n})
}

// TriggerSweep runs one SLA sweep on demand. Repeating it is harmless.
func (h *Handler) TriggerSweep(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.SweepTimeout)
	defer cancel()
	res, err := h.Sweeper.Sweep(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"timestamp": res.Timestamp,
		"scanned":   res.Scanned,
		"notified":  res.Notified,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
	})
}

// ListTasks handles GET /admin/tasks.
func (h *Handler) ListTasks(c *gin.Context) {
	tasks := h.Tasks.Status()
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// RunTask handles POST /admin/tasks/:name/run. It waits for the run to finish.
func (h *Handler) RunTask(c *gin.Context) {
	st, err := h.Tasks.RunNow(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": st})
}
