package hub

import "civictrack/backend/internal/models"

// Client is the interface for any live connection that receives a user's
// notifications (e.g., WebSocket). It abstracts the transport so the hub can
// manage every client type uniformly.
type Client interface {
	// GetUserID returns the identifier of the user the client belongs to.
	GetUserID() string

	// GetSendChannel returns the channel the hub writes notifications for
	// this client to.
	GetSendChannel() chan<- models.Notification

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the client down. It must be safe to call more than once.
	Close()
}
