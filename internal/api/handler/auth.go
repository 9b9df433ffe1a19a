package handler

import (
	"net/http"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type devTokenRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	TTL    string `json:"ttl"`
}

// IssueDevToken видає токен для локальної розробки. Identities normally come
// from an external identity provider; this route is only mounted when
// auth.dev_tokens is enabled.
func (h *Handler) IssueDevToken(c *gin.Context) {
	var req devTokenRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.ValidationError, "role must be CITIZEN, OFFICER or ADMIN", err))
		return
	}
	if req.UserID == "" {
		// Генерація унікального UUID, якщо ID не передано
		req.UserID = uuid.NewString()
	}
	var ttl time.Duration
	if req.TTL != "" {
		if ttl, err = time.ParseDuration(req.TTL); err != nil || ttl <= 0 {
			h.fail(c, apperr.New(apperr.ValidationError, "ttl must be a positive duration"))
			return
		}
	}

	id := models.Identity{UserID: req.UserID, Role: role}
	token, err := h.Issuer.Issue(id, ttl)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.Internal, "failed to create token", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": id.UserID, "role": id.Role})
}
