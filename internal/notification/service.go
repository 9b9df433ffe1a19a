// Package notification stores per-user notifications and pushes new ones to
// live channels (websocket hub, Telegram).
package notification

import (
	"context"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/config"
	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/storage"

	"go.uber.org/zap"
)

// Publisher delivers a stored notification to a live channel.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Message describes a notification before it is rendered for its recipient.
type Message struct {
	UserID      string
	Type        models.NotificationType
	ComplaintID string
	// Args fill the {placeholders} of the localized title and message.
	Args map[string]string
	// Data is stored verbatim in the jsonb column.
	Data map[string]interface{}
	// DedupKey, when set, makes the notification at-most-once.
	DedupKey string
}

// Service creates and reads notifications.
type Service struct {
	store      storage.Storage
	localizer  *localization.Localizer
	log        *zap.Logger
	publishers map[string]Publisher
	defaultLng string
	now        func() time.Time
	timeout    time.Duration
}

// NewService builds a notification service. localizer may be nil, in which
// case titles fall back to the notification type.
func NewService(store storage.Storage, localizer *localization.Localizer, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		localizer:  localizer,
		log:        log,
		publishers: make(map[string]Publisher),
		defaultLng: localization.FallbackLanguage,
		now:        time.Now,
		timeout:    config.DefaultStoreTimeout,
	}
}

// AddPublisher registers a delivery channel under name. Not safe to call once
// the service is in use.
func (s *Service) AddPublisher(name string, p Publisher) {
	s.publishers[name] = p
}

// SetDefaultLanguage sets the language used for users without a preference.
func (s *Service) SetDefaultLanguage(lang string) {
	if lang != "" {
		s.defaultLng = lang
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetStoreTimeout bounds every storage call made by the service.
func (s *Service) SetStoreTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Notify stores m for its recipient and pushes it to every publisher. It
// reports false when m carried a dedup key that was already used. Delivery
// failures are logged and never returned.
func (s *Service) Notify(ctx context.Context, m Message) (bool, error) {
	n := s.render(ctx, m)

	storeCtx, cancel := s.withTimeout(ctx)
	created, err := s.store.CreateNotification(storeCtx, n)
	cancel()
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(n.Type)).Inc()

	for name, p := range s.publishers {
		if err := p.Publish(ctx, *n); err != nil {
			metrics.NotificationDeliveryFailuresTotal.WithLabelValues(name).Inc()
			s.log.Warn("notification delivery failed",
				zap.String("channel", name),
				zap.String("notification_id", n.ID),
				zap.String("user_id", n.UserID),
				zap.Error(err))
		}
	}
	return true, nil
}

func (s *Service) render(ctx context.Context, m Message) *models.Notification {
	lang := s.languageOf(ctx, m.UserID)
	titleKey := "notification." + string(m.Type) + ".title"
	msgKey := "notification." + string(m.Type) + ".message"

	n := &models.Notification{
		UserID:    m.UserID,
		Type:      m.Type,
		Title:     string(m.Type),
		CreatedAt: s.now(),
	}
	if s.localizer != nil {
		n.Title = s.localizer.Format(lang, titleKey, m.Args)
		n.Message = s.localizer.Format(lang, msgKey, m.Args)
	}
	if m.ComplaintID != "" {
		id := m.ComplaintID
		n.ComplaintID = &id
	}
	if len(m.Data) > 0 {
		n.Data = m.Data
	}
	if m.DedupKey != "" {
		key := m.DedupKey
		n.DedupKey = &key
	}
	return n
}

func (s *Service) languageOf(ctx context.Context, userID string) string {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	u, err := s.store.GetUser(ctx, userID)
	if err != nil || u.Language == "" {
		return s.defaultLng
	}
	return u.Language
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, who models.Identity, unreadOnly bool, limit int) ([]models.Notification, error) {
	if who.UserID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if limit <= 0 {
		limit = config.DefaultNotificationPageSize
	}
	if limit > config.MaxNotificationPageSize {
		limit = config.MaxNotificationPageSize
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.ListNotifications(ctx, who.UserID, storage.NotificationFilter{UnreadOnly: unreadOnly, Limit: limit})
}

// UnreadCount returns how many of the caller's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, who models.Identity) (int64, error) {
	if who.UserID == "" {
		return 0, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.CountUnread(ctx, who.UserID)
}

// MarkRead marks one of the caller's notifications read. Marking an already
// read notification is a no-op; someone else's notification is NotFound.
func (s *Service) MarkRead(ctx context.Context, who models.Identity, id string) error {
	if who.UserID == "" {
		return apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if id == "" {
		return apperr.New(apperr.ValidationError, "notification id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.MarkNotificationRead(ctx, id, who.UserID, s.now())
}

// MarkAllRead marks every unread notification of the caller read.
func (s *Service) MarkAllRead(ctx context.Context, who models.Identity) (int64, error) {
	if who.UserID == "" {
		return 0, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.MarkAllNotificationsRead(ctx, who.UserID, s.now())
}

// Purge deletes read notifications older than retention. Unread ones stay.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, apperr.New(apperr.ValidationError, "retention must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.store.PurgeReadNotifications(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	s.log.Info("purged read notifications", zap.Int64("count", n), zap.Duration("retention", retention))
	return n, nil
}
