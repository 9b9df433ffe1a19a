package handler

import (
	"net/http"
	"strconv"

	"civictrack/backend/internal/complaint"
	"civictrack/backend/internal/lifecycle"
	"civictrack/backend/internal/models"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateComplaint(c *gin.Context) {
	who, _ := identityFrom(c)
	var in complaint.CreateInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}

	created, err := h.Complaints.Create(c.Request.Context(), who, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// complaintView is a complaint together with the statuses the caller may
// move it to next.
type complaintView struct {
	*models.Complaint
	AllowedTransitions []models.ComplaintStatus `json:"allowedTransitions"`
}

func (h *Handler) GetComplaint(c *gin.Context) {
	who, _ := identityFrom(c)
	found, err := h.Complaints.Get(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	next := lifecycle.NextStatuses(who, found)
	if next == nil {
		next = []models.ComplaintStatus{}
	}
	c.JSON(http.StatusOK, complaintView{Complaint: found, AllowedTransitions: next})
}

func (h *Handler) ListComplaints(c *gin.Context) {
	who, _ := identityFrom(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.Complaints.List(c.Request.Context(), who, complaint.ListInput{
		Status: c.Query("status"),
		Limit:  limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaints": list, "count": len(list)})
}

func (h *Handler) TransitionComplaint(c *gin.Context) {
	who, _ := identityFrom(c)
	var in complaint.TransitionInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}

	updated, err := h.Complaints.Transition(c.Request.Context(), who, c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// SubmitFeedback handles POST /complaints/:id/feedback.
func (h *Handler) SubmitFeedback(c *gin.Context) {
	var in complaint.FeedbackInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}

	var who *models.Identity
	if id, ok := identityFrom(c); ok {
		who = &id
	}
	fb, err := h.Complaints.SubmitFeedback(c.Request.Context(), who, c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": fb.ID, "rating": fb.Rating, "createdAt": fb.CreatedAt})
}

// GetFeedback handles GET /complaints/:id/feedback. The body is the caller's
// projection, or {exists:false, feedback:null}.
func (h *Handler) GetFeedback(c *gin.Context) {
	who, _ := identityFrom(c)
	res, err := h.Complaints.GetFeedback(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// OfficerFeedback handles GET /officer/feedback. Admins pass ?officerId=.
func (h *Handler) OfficerFeedback(c *gin.Context) {
	who, _ := identityFrom(c)
	summary, err := h.Complaints.OfficerSummary(c.Request.Context(), who, c.Query("officerId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
