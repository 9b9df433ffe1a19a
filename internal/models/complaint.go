package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ComplaintStatus is a position in the complaint lifecycle.
type ComplaintStatus string

const (
	StatusPending    ComplaintStatus = "PENDING"
	StatusVerified   ComplaintStatus = "VERIFIED"
	StatusAssigned   ComplaintStatus = "ASSIGNED"
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	StatusResolved   ComplaintStatus = "RESOLVED"
	StatusClosed     ComplaintStatus = "CLOSED"
	StatusRejected   ComplaintStatus = "REJECTED"
)

// OpenStatuses are the pre-resolution statuses. Complaints in these states are
// still running against their SLA deadline.
var OpenStatuses = []ComplaintStatus{StatusPending, StatusVerified, StatusAssigned, StatusInProgress}

// Valid reports whether s is one of the known statuses.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusAssigned, StatusInProgress,
		StatusResolved, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s ComplaintStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusRejected
}

// IsOpen reports whether s is a pre-resolution status.
func (s ComplaintStatus) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// Complaint is the central workflow record: an issue reported by a citizen.
// CreatedBy never changes after creation; the lifecycle timestamps are each
// written by exactly one transition.
type Complaint struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string          `gorm:"type:text;not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Category    string          `gorm:"type:text;index" json:"category,omitempty"`
	Location    string          `gorm:"type:text" json:"location,omitempty"`
	Attachments pq.StringArray  `gorm:"type:text[]" json:"attachments,omitempty"`
	Status      ComplaintStatus `gorm:"type:text;not null;index" json:"status"`
	CreatedBy   string          `gorm:"type:text;not null;index" json:"createdBy"`
	AssignedTo  *string         `gorm:"type:text;index" json:"assignedTo,omitempty"`
	SLADeadline *time.Time      `gorm:"index" json:"slaDeadline,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
}

// BeforeCreate assigns an ID when the caller did not.
func (c *Complaint) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// IsAssignedTo reports whether the complaint is assigned to userID.
func (c *Complaint) IsAssignedTo(userID string) bool {
	return c.AssignedTo != nil && *c.AssignedTo == userID
}

// ComplaintUpdate is the set of columns a status transition writes. Nil
// pointers leave the stored value untouched.
type ComplaintUpdate struct {
	Status     ComplaintStatus
	AssignedTo *string
	AssignedAt *time.Time
	ResolvedAt *time.Time
	ClosedAt   *time.Time
	UpdatedAt  time.Time
}

// Apply writes the update onto c.
func (u ComplaintUpdate) Apply(c *Complaint) {
	c.Status = u.Status
	if u.AssignedTo != nil {
		c.AssignedTo = u.AssignedTo
	}
	if u.AssignedAt != nil {
		c.AssignedAt = u.AssignedAt
	}
	if u.ResolvedAt != nil {
		c.ResolvedAt = u.ResolvedAt
	}
	if u.ClosedAt != nil {
		c.ClosedAt = u.ClosedAt
	}
	c.UpdatedAt = u.UpdatedAt
}

// Columns returns the update as a gorm column map.
func (u ComplaintUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"status":     u.Status,
		"updated_at": u.UpdatedAt,
	}
	if u.AssignedTo != nil {
		cols["assigned_to"] = *u.AssignedTo
	}
	if u.AssignedAt != nil {
		cols["assigned_at"] = *u.AssignedAt
	}
	if u.ResolvedAt != nil {
		cols["resolved_at"] = *u.ResolvedAt
	}
	if u.ClosedAt != nil {
		cols["closed_at"] = *u.ClosedAt
	}
	return cols
}
