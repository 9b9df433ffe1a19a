package config

import "time"

const (
	// Feedback
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 300

	// Complaint input
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxAttachments       = 10

	// SLA
	DefaultSLAWindow         = 72 * time.Hour
	DefaultApproachingWindow = 24 * time.Hour
	DefaultSweepSchedule     = "@every 30m"
	DefaultSweepLockTTL      = 10 * time.Minute

	// RBAC audit ring buffer
	DefaultAuditCapacity = 1000
	DefaultAuditQueryCap = 200

	// Notifications
	DefaultNotificationRetention = 90 * 24 * time.Hour
	DefaultPurgeSchedule         = "@daily"
	DefaultNotificationPageSize  = 50
	MaxNotificationPageSize      = 200

	// Store
	DefaultStoreTimeout = 5 * time.Second
)
