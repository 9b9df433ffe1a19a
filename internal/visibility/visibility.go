// Package visibility masks feedback fields per caller.
package visibility

import (
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"
)

// Projection is the caller-specific view of a feedback record. Nil fields
// were withheld and are omitted from JSON.
type Projection struct {
	ID        string    `json:"id"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CitizenID *string   `json:"citizenId,omitempty"`
	OfficerID *string   `json:"officerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Result distinguishes "no feedback yet" from a projected record.
type Result struct {
	Exists   bool        `json:"exists"`
	Feedback *Projection `json:"feedback"`
}

// ErrAccessDenied is returned for every viewer the policy does not cover. It
// carries no detail about the record.
var ErrAccessDenied = apperr.New(apperr.Forbidden, "access denied")

// scope is what a viewer may see of a complaint's feedback.
type scope int

const (
	scopeNone scope = iota
	scopeOfficer
	scopeOwner
	scopeFull
)

func scopeFor(viewer models.Identity, c *models.Complaint) scope {
	switch viewer.Role {
	case models.RoleAdmin:
		return scopeFull
	case models.RoleOfficer:
		return scopeOfficer
	case models.RoleCitizen:
		if c.CreatedBy == viewer.UserID {
			return scopeOwner
		}
	}
	return scopeNone
}

// CanView reports whether viewer is covered by the policy for c.
func CanView(viewer models.Identity, c *models.Complaint) bool {
	return scopeFor(viewer, c) != scopeNone
}

// VisibleFeedback projects fb for viewer. The access decision comes first, so
// a denied viewer cannot learn whether feedback exists.
func VisibleFeedback(viewer models.Identity, c *models.Complaint, fb *models.Feedback) (Result, error) {
	sc := scopeFor(viewer, c)
	if sc == scopeNone {
		return Result{}, ErrAccessDenied
	}
	if fb == nil {
		return Result{Exists: false}, nil
	}

	p := &Projection{ID: fb.ID, Rating: fb.Rating, CreatedAt: fb.CreatedAt}
	switch sc {
	case scopeFull:
		p.Comment = strRef(fb.Comment)
		p.CitizenID = strRef(fb.CitizenID)
		p.OfficerID = strRef(fb.OfficerID)
	case scopeOwner:
		p.Comment = strRef(fb.Comment)
	}
	return Result{Exists: true, Feedback: p}, nil
}

func strRef(s string) *string {
	return &s
}
