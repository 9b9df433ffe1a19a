package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feedback is the one-time citizen rating of a resolved complaint.
// The unique index on ComplaintID enforces the 1:1 relation; CitizenID and
// OfficerID are copies of the complaint's CreatedBy and AssignedTo at the
// moment of submission.
type Feedback struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	ComplaintID string    `gorm:"type:uuid;not null;uniqueIndex" json:"complaintId"`
	Rating      int       `gorm:"not null;check:chk_feedback_rating,rating >= 1 AND rating <= 5" json:"rating"`
	Comment     string    `gorm:"type:varchar(300)" json:"comment,omitempty"`
	CitizenID   string    `gorm:"type:text;not null" json:"citizenId"`
	OfficerID   string    `gorm:"type:text;not null;index" json:"officerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BeforeCreate assigns an ID when the caller did not.
func (f *Feedback) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return
}
