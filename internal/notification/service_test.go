package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []models.Notification
	fail error
}

func (p *recordingPublisher) Publish(_ context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.got = append(p.got, n)
	return nil
}

func newService(t *testing.T) (*notification.Service, *storage.MemoryStore) {
	t.Helper()
	loc, err := localization.NewLocalizer()
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	return notification.NewService(store, loc, zap.NewNop()), store
}

func TestNotify_RendersAndPublishes(t *testing.T) {
	svc, store := newService(t)
	pub := &recordingPublisher{}
	svc.AddPublisher("test", pub)
	ctx := context.Background()

	created, err := svc.Notify(ctx, notification.Message{
		UserID:      "o1",
		Type:        models.NotifAssigned,
		ComplaintID: "c1",
		Args:        map[string]string{"title": "Pothole"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	list, err := store.ListNotifications(ctx, "o1", storage.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New complaint assigned", list[0].Title)
	assert.Contains(t, list[0].Message, "Pothole")
	require.NotNil(t, list[0].ComplaintID)
	assert.Equal(t, "c1", *list[0].ComplaintID)

	require.Len(t, pub.got, 1)
	assert.Equal(t, list[0].ID, pub.got[0].ID)
}

func TestNotify_UsesRecipientLanguage(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, &models.User{ID: "u1", Role: models.RoleCitizen, Language: "uk"}))

	_, err := svc.Notify(ctx, notification.Message{UserID: "u1", Type: models.NotifStatusChanged,
		Args: map[string]string{"title": "x", "status": "VERIFIED"}})
	require.NoError(t, err)

	list, err := store.ListNotifications(ctx, "u1", storage.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEqual(t, "Complaint status updated", list[0].Title)
}

func TestNotify_DedupKeySuppressesRepeat(t *testing.T) {
	svc, store := newService(t)
	pub := &recordingPublisher{}
	svc.AddPublisher("test", pub)
	ctx := context.Background()
	m := notification.Message{UserID: "o1", Type: models.NotifSLABreached, DedupKey: "sla:breached:c1:o1"}

	first, err := svc.Notify(ctx, m)
	require.NoError(t, err)
	second, err := svc.Notify(ctx, m)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	n, err := store.CountUnread(ctx, "o1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, pub.got, 1, "duplicates are not pushed")
}

func TestNotify_DeliveryFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := storage.NewMemoryStore()
	svc := notification.NewService(store, nil, zap.New(core))
	svc.AddPublisher("telegram", &recordingPublisher{fail: errors.New("bot blocked")})

	created, err := svc.Notify(context.Background(), notification.Message{UserID: "u1", Type: models.NotifStatusChanged})

	require.NoError(t, err)
	assert.True(t, created)
	require.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
	assert.Equal(t, "telegram", logs.All()[0].ContextMap()["channel"])
}

func TestReadStateTransitions(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	me := models.Identity{UserID: "u1", Role: models.RoleCitizen}
	someoneElse := models.Identity{UserID: "u2", Role: models.RoleCitizen}

	for i := 0; i < 3; i++ {
		_, err := svc.Notify(ctx, notification.Message{UserID: "u1", Type: models.NotifStatusChanged})
		require.NoError(t, err)
	}
	list, err := svc.List(ctx, me, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Act
	require.NoError(t, svc.MarkRead(ctx, me, list[0].ID))
	require.NoError(t, svc.MarkRead(ctx, me, list[0].ID), "marking twice is a no-op")
	err = svc.MarkRead(ctx, someoneElse, list[1].ID)

	// Assert
	assert.True(t, apperr.Is(err, apperr.NotFound))
	count, err := svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	updated, err := svc.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)
	count, err = store.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPurge_KeepsUnreadAndRecent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	me := models.Identity{UserID: "u1", Role: models.RoleCitizen}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	svc.SetClock(func() time.Time { return base })
	_, err := svc.Notify(ctx, notification.Message{UserID: "u1", Type: models.NotifStatusChanged, DedupKey: "old-read"})
	require.NoError(t, err)
	_, err = svc.MarkAllRead(ctx, me)
	require.NoError(t, err)
	_, err = svc.Notify(ctx, notification.Message{UserID: "u1", Type: models.NotifStatusChanged, DedupKey: "old-unread"})
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return base.Add(100 * 24 * time.Hour) })
	purged, err := svc.Purge(ctx, 90*24*time.Hour)

	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
	left, err := store.ListNotifications(ctx, "u1", storage.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.False(t, left[0].IsRead)

	_, err = svc.Purge(ctx, 0)
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestAnonymousCallerIsRejected(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.List(context.Background(), models.Identity{}, false, 10)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))
}

// deadlineStore records, per storage call, whether the context carried a
// deadline and how far away it was.
type deadlineStore struct {
	*storage.MemoryStore
	mu  sync.Mutex
	got map[string]time.Duration
}

func (d *deadlineStore) record(ctx context.Context, call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	left := time.Duration(-1)
	if dl, ok := ctx.Deadline(); ok {
		left = time.Until(dl)
	}
	d.got[call] = left
}

func (d *deadlineStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	d.record(ctx, "GetUser")
	return d.MemoryStore.GetUser(ctx, id)
}

func (d *deadlineStore) CreateNotification(ctx context.Context, n *models.Notification) (bool, error) {
	d.record(ctx, "CreateNotification")
	return d.MemoryStore.CreateNotification(ctx, n)
}

func (d *deadlineStore) ListNotifications(ctx context.Context, userID string, f storage.NotificationFilter) ([]models.Notification, error) {
	d.record(ctx, "ListNotifications")
	return d.MemoryStore.ListNotifications(ctx, userID, f)
}

func (d *deadlineStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	d.record(ctx, "CountUnread")
	return d.MemoryStore.CountUnread(ctx, userID)
}

func (d *deadlineStore) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) error {
	d.record(ctx, "MarkNotificationRead")
	return d.MemoryStore.MarkNotificationRead(ctx, id, userID, at)
}

func (d *deadlineStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	d.record(ctx, "MarkAllNotificationsRead")
	return d.MemoryStore.MarkAllNotificationsRead(ctx, userID, at)
}

func (d *deadlineStore) PurgeReadNotifications(ctx context.Context, before time.Time) (int64, error) {
	d.record(ctx, "PurgeReadNotifications")
	return d.MemoryStore.PurgeReadNotifications(ctx, before)
}

func TestStoreCallsAreBoundedByTimeout(t *testing.T) {
	// Arrange
	store := &deadlineStore{MemoryStore: storage.NewMemoryStore(), got: make(map[string]time.Duration)}
	svc := notification.NewService(store, nil, zap.NewNop())
	svc.SetStoreTimeout(2 * time.Second)
	ctx := context.Background()
	me := models.Identity{UserID: "u1", Role: models.RoleCitizen}

	// Act
	_, err := svc.Notify(ctx, notification.Message{UserID: "u1", Type: models.NotifStatusChanged})
	require.NoError(t, err)
	list, err := svc.List(ctx, me, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, svc.MarkRead(ctx, me, list[0].ID))
	_, err = svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	_, err = svc.MarkAllRead(ctx, me)
	require.NoError(t, err)
	_, err = svc.Purge(ctx, time.Hour)
	require.NoError(t, err)

	// Assert
	require.Len(t, store.got, 7)
	for call, left := range store.got {
		assert.Greater(t, left, time.Duration(0), "%s ran without a deadline", call)
		assert.LessOrEqual(t, left, 2*time.Second, call)
	}
}
