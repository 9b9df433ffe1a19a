package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}

// Authenticate resolves the bearer token into an Identity or aborts with 401.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			h.abort(c, apperr.New(apperr.Unauthenticated, "authorization token missing"))
			return
		}
		id, err := h.Issuer.Parse(token)
		if err != nil {
			h.abort(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole lets the request through only for the given roles. Every
// decision is recorded in the audit log.
func (h *Handler) RequireRole(roles ...models.Role) gin.HandlerFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	permission := "role:" + strings.Join(names, "|")

	return func(c *gin.Context) {
		id, _ := identityFrom(c)
		allowed := false
		for _, r := range roles {
			if id.Role == r {
				allowed = true
				break
			}
		}
		resource := c.Request.Method + " " + c.FullPath()
		if !h.Audit.Decide(id, audit.ActionAPIAccess, resource, permission, allowed, "role not permitted") {
			h.abort(c, apperr.New(apperr.Forbidden, "insufficient role"))
			return
		}
		c.Next()
	}
}

// Observe records request metrics and logs failed requests.
func (h *Handler) Observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())

		if status >= http.StatusInternalServerError {
			h.Log.Warn("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("took", time.Since(start)))
		}
	}
}

func identityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// errorBody is the shape of every error response.
func errorBody(err error) gin.H {
	return gin.H{"error": apperr.PublicMessage(err), "code": apperr.KindOf(err).Code()}
}

// fail writes err as a JSON error response. Causes are logged, never sent.
func (h *Handler) fail(c *gin.Context, err error) {
	h.logError(c, err)
	c.JSON(apperr.KindOf(err).HTTPStatus(), errorBody(err))
}

func (h *Handler) abort(c *gin.Context, err error) {
	h.logError(c, err)
	c.AbortWithStatusJSON(apperr.KindOf(err).HTTPStatus(), errorBody(err))
}

func (h *Handler) logError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind != apperr.Internal && kind != apperr.Transient {
		return
	}
	h.Log.Error("request error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("code", kind.Code()),
		zap.Error(err))
}

// bindJSON decodes the request body into v. Decoding problems are
// validation errors; field rules are checked by the services.
func bindJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Wrap(apperr.ValidationError, "malformed request body", err)
	}
	return nil
}
