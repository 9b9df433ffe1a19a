package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MemoryStore is an in-process Storage. It backs the memory storage driver
// and the tests of every package that needs a store.
type MemoryStore struct {
	mu   *sync.RWMutex
	st   *memState
	inTx bool
	// clock stamps CreatedAt when the caller left it zero.
	clock func() time.Time
}

type memState struct {
	complaints    map[string]models.Complaint
	feedback      map[string]models.Feedback // by complaint id
	notifications map[string]models.Notification
	dedup         map[string]string // dedup key -> notification id
	users         map[string]models.User
}

func newMemState() *memState {
	return &memState{
		complaints:    make(map[string]models.Complaint),
		feedback:      make(map[string]models.Feedback),
		notifications: make(map[string]models.Notification),
		dedup:         make(map[string]string),
		users:         make(map[string]models.User),
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.complaints {
		c.complaints[k] = v
	}
	for k, v := range st.feedback {
		c.feedback[k] = v
	}
	for k, v := range st.notifications {
		c.notifications[k] = v
	}
	for k, v := range st.dedup {
		c.dedup[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	return c
}

var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.RWMutex{}, st: newMemState(), clock: time.Now}
}

// SetClock replaces the time source used for CreatedAt defaults.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *MemoryStore) read(ctx context.Context, fn func(st *memState) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.Transient, "service temporarily unavailable", err)
	}
	if !s.inTx {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.st)
}

func (s *MemoryStore) write(ctx context.Context, fn func(st *memState) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.Transient, "service temporarily unavailable", err)
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

// WithTx runs fn against a private copy of the state while holding the write
// lock; the copy replaces the state only if fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Storage) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.Transient, "service temporarily unavailable", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{mu: s.mu, st: s.st.clone(), inTx: true, clock: s.clock}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// --- complaints ---

func copyComplaint(c models.Complaint) models.Complaint {
	if c.Attachments != nil {
		c.Attachments = append(pq.StringArray(nil), c.Attachments...)
	}
	return c
}

func (s *MemoryStore) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	return s.write(ctx, func(st *memState) error {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, exists := st.complaints[c.ID]; exists {
			return apperr.New(apperr.Conflict, "create complaint: already exists")
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.clock()
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}
		st.complaints[c.ID] = copyComplaint(*c)
		return nil
	})
}

func (s *MemoryStore) GetComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	var out models.Complaint
	err := s.read(ctx, func(st *memState) error {
		c, ok := st.complaints[id]
		if !ok {
			return apperr.New(apperr.NotFound, "complaint not found")
		}
		out = copyComplaint(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetComplaintForUpdate needs no extra locking: a transaction already holds
// the store's write lock.
func (s *MemoryStore) GetComplaintForUpdate(ctx context.Context, id string) (*models.Complaint, error) {
	return s.GetComplaint(ctx, id)
}

func matchComplaint(c models.Complaint, f ComplaintFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if c.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedBy != "" && c.CreatedBy != f.CreatedBy {
		return false
	}
	if f.AssignedTo != "" && !c.IsAssignedTo(f.AssignedTo) {
		return false
	}
	if f.HasSLADeadline && c.SLADeadline == nil {
		return false
	}
	return true
}

func (s *MemoryStore) ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, error) {
	var out []models.Complaint
	err := s.read(ctx, func(st *memState) error {
		for _, c := range st.complaints {
			if matchComplaint(c, f) {
				out = append(out, copyComplaint(c))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountComplaints(ctx context.Context, f ComplaintFilter) (int64, error) {
	var n int64
	err := s.read(ctx, func(st *memState) error {
		for _, c := range st.complaints {
			if matchComplaint(c, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *MemoryStore) UpdateComplaintStatus(ctx context.Context, id string, from models.ComplaintStatus, upd models.ComplaintUpdate) error {
	return s.write(ctx, func(st *memState) error {
		c, ok := st.complaints[id]
		if !ok {
			return apperr.New(apperr.NotFound, "complaint not found")
		}
		if c.Status != from {
			return apperr.New(apperr.Conflict, "complaint was modified concurrently")
		}
		upd.Apply(&c)
		st.complaints[id] = c
		return nil
	})
}

// --- feedback ---

func (s *MemoryStore) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	return s.write(ctx, func(st *memState) error {
		if _, exists := st.feedback[f.ComplaintID]; exists {
			return apperr.New(apperr.Conflict, "feedback already submitted")
		}
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = s.clock()
		}
		st.feedback[f.ComplaintID] = *f
		return nil
	})
}

func (s *MemoryStore) GetFeedbackByComplaint(ctx context.Context, complaintID string) (*models.Feedback, error) {
	var out models.Feedback
	err := s.read(ctx, func(st *memState) error {
		f, ok := st.feedback[complaintID]
		if !ok {
			return apperr.New(apperr.NotFound, "feedback not found")
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) FeedbackRatingCounts(ctx context.Context, officerID string) (map[int]int, error) {
	counts := make(map[int]int)
	err := s.read(ctx, func(st *memState) error {
		for _, f := range st.feedback {
			if f.OfficerID == officerID {
				counts[f.Rating]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// --- notifications ---

func (s *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) (bool, error) {
	created := false
	err := s.write(ctx, func(st *memState) error {
		if n.DedupKey != nil {
			if _, exists := st.dedup[*n.DedupKey]; exists {
				return nil
			}
		}
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = s.clock()
		}
		st.notifications[n.ID] = *n
		if n.DedupKey != nil {
			st.dedup[*n.DedupKey] = n.ID
		}
		created = true
		return nil
	})
	return created, err
}

func (s *MemoryStore) ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]models.Notification, error) {
	var out []models.Notification
	err := s.read(ctx, func(st *memState) error {
		for _, n := range st.notifications {
			if n.UserID != userID || (f.UnreadOnly && n.IsRead) {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.read(ctx, func(st *memState) error {
		for _, n := range st.notifications {
			if n.UserID == userID && !n.IsRead {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) error {
	return s.write(ctx, func(st *memState) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return apperr.New(apperr.NotFound, "notification not found")
		}
		if n.IsRead {
			return nil
		}
		n.IsRead = true
		n.ReadAt = &at
		st.notifications[id] = n
		return nil
	})
}

func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	var updated int64
	err := s.write(ctx, func(st *memState) error {
		for id, n := range st.notifications {
			if n.UserID != userID || n.IsRead {
				continue
			}
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			st.notifications[id] = n
			updated++
		}
		return nil
	})
	return updated, err
}

// PurgeReadNotifications deletes read notifications created before the cutoff.
// Deduplicated notifications of complaints that are still open are kept: their
// key is what stops the SLA sweep from warning again.
func (s *MemoryStore) PurgeReadNotifications(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := s.write(ctx, func(st *memState) error {
		for id, n := range st.notifications {
			if !n.IsRead || !n.CreatedAt.Before(before) {
				continue
			}
			if n.DedupKey != nil && n.ComplaintID != nil {
				if c, ok := st.complaints[*n.ComplaintID]; ok && c.Status.IsOpen() {
					continue
				}
			}
			delete(st.notifications, id)
			if n.DedupKey != nil {
				delete(st.dedup, *n.DedupKey)
			}
			purged++
		}
		return nil
	})
	return purged, err
}

// --- users ---

func (s *MemoryStore) SaveUser(ctx context.Context, u *models.User) error {
	return s.write(ctx, func(st *memState) error {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		if u.TelegramChatID != nil {
			for id, other := range st.users {
				if id != u.ID && other.TelegramChatID != nil && *other.TelegramChatID == *u.TelegramChatID {
					return apperr.New(apperr.Conflict, "save user: already exists")
				}
			}
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var out models.User
	err := s.read(ctx, func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return apperr.New(apperr.NotFound, "user not found")
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) GetUserByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	var out *models.User
	err := s.read(ctx, func(st *memState) error {
		for _, u := range st.users {
			if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
				u := u
				out = &u
				return nil
			}
		}
		return apperr.New(apperr.NotFound, "user not found")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
