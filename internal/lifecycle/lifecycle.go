// Package lifecycle holds the complaint state machine. Everything here is a
// pure decision over values; the complaint service applies the result.
package lifecycle

import (
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"
)

type rule struct {
	roles []models.Role
	// assigneeOnly restricts officers to complaints assigned to them.
	assigneeOnly bool
}

var (
	staff       = []models.Role{models.RoleAdmin, models.RoleOfficer}
	adminOnly   = []models.Role{models.RoleAdmin}
	rejectStaff = rule{roles: staff}
)

// transitions lists every edge a caller may request directly. RESOLVED to
// CLOSED is absent: only feedback submission closes a complaint.
var transitions = map[models.ComplaintStatus]map[models.ComplaintStatus]rule{
	models.StatusPending: {
		models.StatusVerified: {roles: staff},
		models.StatusRejected: rejectStaff,
	},
	models.StatusVerified: {
		models.StatusAssigned: {roles: adminOnly},
		models.StatusRejected: rejectStaff,
	},
	models.StatusAssigned: {
		models.StatusInProgress: {roles: staff, assigneeOnly: true},
		models.StatusRejected:   rejectStaff,
	},
	models.StatusInProgress: {
		models.StatusResolved: {roles: staff, assigneeOnly: true},
		models.StatusRejected: rejectStaff,
	},
}

// CanTransition reports whether from -> to is an edge of the state machine
// that a caller may request.
func CanTransition(from, to models.ComplaintStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// NextStatuses returns the statuses actor may move c to.
func NextStatuses(actor models.Identity, c *models.Complaint) []models.ComplaintStatus {
	var out []models.ComplaintStatus
	for _, to := range []models.ComplaintStatus{
		models.StatusVerified, models.StatusAssigned, models.StatusInProgress,
		models.StatusResolved, models.StatusRejected,
	} {
		r, ok := transitions[c.Status][to]
		if ok && allowed(actor, c, r) {
			out = append(out, to)
		}
	}
	return out
}

func allowed(actor models.Identity, c *models.Complaint, r rule) bool {
	for _, role := range r.roles {
		if role != actor.Role {
			continue
		}
		if r.assigneeOnly && actor.Role == models.RoleOfficer {
			return c.IsAssignedTo(actor.UserID)
		}
		return true
	}
	return false
}

// PlanTransition validates a requested status change and returns the columns
// it writes. assignee is only read for ASSIGNED.
func PlanTransition(actor models.Identity, c *models.Complaint, to models.ComplaintStatus, assignee string, now time.Time) (models.ComplaintUpdate, error) {
	if actor.Role == models.RoleCitizen {
		return models.ComplaintUpdate{}, apperr.New(apperr.Forbidden, "citizens cannot change complaint status")
	}
	if !to.Valid() {
		return models.ComplaintUpdate{}, apperr.New(apperr.ValidationError, "unknown status")
	}
	if to == models.StatusClosed {
		return models.ComplaintUpdate{}, apperr.New(apperr.InvalidState, "complaints are closed by citizen feedback")
	}

	if !CanTransition(c.Status, to) {
		return models.ComplaintUpdate{}, apperr.New(apperr.InvalidState,
			"cannot move complaint from "+string(c.Status)+" to "+string(to))
	}
	if !allowed(actor, c, transitions[c.Status][to]) {
		return models.ComplaintUpdate{}, apperr.New(apperr.Forbidden, "not allowed to perform this transition")
	}

	upd := models.ComplaintUpdate{Status: to, UpdatedAt: now}
	switch to {
	case models.StatusAssigned:
		if assignee == "" {
			return models.ComplaintUpdate{}, apperr.New(apperr.ValidationError, "assignedTo is required")
		}
		upd.AssignedTo = &assignee
		upd.AssignedAt = &now
	case models.StatusResolved:
		if c.AssignedTo == nil {
			return models.ComplaintUpdate{}, apperr.New(apperr.InvalidState, "complaint has no assigned officer")
		}
		upd.ResolvedAt = &now
	}
	return upd, nil
}

// CheckFeedback decides whether actor may leave feedback on c.
// existing is the feedback already stored for c, if any.
//
// The checks run in a fixed order so the same request always fails the same
// way: identity, existence, ownership, duplicate, then lifecycle state.
func CheckFeedback(actor *models.Identity, c *models.Complaint, existing *models.Feedback) error {
	if actor == nil || actor.UserID == "" {
		return apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if c == nil {
		return apperr.New(apperr.NotFound, "complaint not found")
	}
	if c.CreatedBy != actor.UserID {
		return apperr.New(apperr.Forbidden, "only the citizen who filed the complaint can leave feedback")
	}
	if existing != nil {
		return apperr.New(apperr.Conflict, "feedback already submitted")
	}
	if c.Status != models.StatusResolved {
		return apperr.New(apperr.InvalidState, "feedback is only accepted for resolved complaints")
	}
	if c.AssignedTo == nil || *c.AssignedTo == "" {
		return apperr.New(apperr.InvalidState, "complaint has no assigned officer")
	}
	return nil
}

// CloseOnFeedback is the update that accompanies a feedback write.
func CloseOnFeedback(now time.Time) models.ComplaintUpdate {
	return models.ComplaintUpdate{Status: models.StatusClosed, ClosedAt: &now, UpdatedAt: now}
}
