package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotifSLAApproaching   NotificationType = "SLA_APPROACHING"
	NotifSLABreached      NotificationType = "SLA_BREACHED"
	NotifStatusChanged    NotificationType = "COMPLAINT_STATUS_CHANGED"
	NotifAssigned         NotificationType = "COMPLAINT_ASSIGNED"
	NotifFeedbackReceived NotificationType = "FEEDBACK_RECEIVED"
)

// Notification is a per-user message. Once created only its read state changes.
// DedupKey, when set, is unique: a second notification with the same key is
// never stored.
type Notification struct {
	ID          string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string            `gorm:"type:text;not null;index:idx_notification_user_read" json:"userId"`
	Type        NotificationType  `gorm:"type:text;not null" json:"type"`
	Title       string            `gorm:"type:text;not null" json:"title"`
	Message     string            `gorm:"type:text" json:"message"`
	ComplaintID *string           `gorm:"type:uuid;index" json:"complaintId,omitempty"`
	Data        datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	DedupKey    *string           `gorm:"type:text;uniqueIndex" json:"-"`
	IsRead      bool              `gorm:"not null;default:false;index:idx_notification_user_read" json:"isRead"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
	CreatedAt   time.Time         `gorm:"index" json:"createdAt"`
}

// BeforeCreate assigns an ID when the caller did not.
func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}
