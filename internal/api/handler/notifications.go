package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	who, _ := identityFrom(c)
	unread, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.Notifications.List(c.Request.Context(), who, unread, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	who, _ := identityFrom(c)
	n, err := h.Notifications.UnreadCount(c.Request.Context(), who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}

func (h *Handler) MarkRead(c *gin.Context) {
	who, _ := identityFrom(c)
	if err := h.Notifications.MarkRead(c.Request.Context(), who, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	who, _ := identityFrom(c)
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}
