package storage

import (
	"context"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComplaintFilter narrows ListComplaints and CountComplaints. Zero values match everything.
type ComplaintFilter struct {
	Statuses       []models.ComplaintStatus
	CreatedBy      string
	AssignedTo     string
	HasSLADeadline bool
	Limit          int
}

// NotificationFilter narrows ListNotifications.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}

type ComplaintStore interface {
	CreateComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaint(ctx context.Context, id string) (*models.Complaint, error)
	// GetComplaintForUpdate locks the row until the surrounding transaction ends.
	GetComplaintForUpdate(ctx context.Context, id string) (*models.Complaint, error)
	ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, error)
	CountComplaints(ctx context.Context, f ComplaintFilter) (int64, error)
	// UpdateComplaintStatus applies upd only while the stored status still equals from.
	// A lost race is reported as apperr.Conflict.
	UpdateComplaintStatus(ctx context.Context, id string, from models.ComplaintStatus, upd models.ComplaintUpdate) error
}

type FeedbackStore interface {
	CreateFeedback(ctx context.Context, f *models.Feedback) error
	GetFeedbackByComplaint(ctx context.Context, complaintID string) (*models.Feedback, error)
	// FeedbackRatingCounts returns the number of feedbacks per rating for an officer.
	FeedbackRatingCounts(ctx context.Context, officerID string) (map[int]int, error)
}

type NotificationStore interface {
	// CreateNotification reports false when a notification with the same dedup key exists.
	CreateNotification(ctx context.Context, n *models.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	PurgeReadNotifications(ctx context.Context, before time.Time) (int64, error)
}

type UserStore interface {
	SaveUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
}

// Storage is the persistence boundary of the application.
type Storage interface {
	ComplaintStore
	FeedbackStore
	NotificationStore
	UserStore

	// WithTx runs fn inside one transaction. Everything fn does through tx is
	// committed together or not at all.
	WithTx(ctx context.Context, fn func(tx Storage) error) error
}

// Service is the PostgreSQL implementation of Storage.
type Service struct {
	DB *gorm.DB
}

var _ Storage = (*Service)(nil)

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Complaint{},
		&models.Feedback{},
		&models.Notification{},
	}
}

// Migrate creates or updates the schema.
func (s *Service) Migrate(ctx context.Context) error {
	return classify("migrate schema", s.DB.WithContext(ctx).AutoMigrate(Models()...))
}

func (s *Service) WithTx(ctx context.Context, fn func(tx Storage) error) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Service{DB: tx})
	})
	return classify("transaction", err)
}

// --- complaints ---

func (s *Service) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	return classify("create complaint", s.DB.WithContext(ctx).Create(c).Error)
}

func (s *Service) GetComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	var c models.Complaint
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, classify("complaint", err)
	}
	return &c, nil
}

func (s *Service) GetComplaintForUpdate(ctx context.Context, id string) (*models.Complaint, error) {
	var c models.Complaint
	err := s.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, classify("complaint", err)
	}
	return &c, nil
}

func (s *Service) complaintQuery(ctx context.Context, f ComplaintFilter) *gorm.DB {
	q := s.DB.WithContext(ctx).Model(&models.Complaint{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.CreatedBy != "" {
		q = q.Where("created_by = ?", f.CreatedBy)
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	if f.HasSLADeadline {
		q = q.Where("sla_deadline IS NOT NULL")
	}
	return q
}

func (s *Service) ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, error) {
	var out []models.Complaint
	q := s.complaintQuery(ctx, f).Order("created_at desc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, classify("list complaints", err)
	}
	return out, nil
}

func (s *Service) CountComplaints(ctx context.Context, f ComplaintFilter) (int64, error) {
	var n int64
	if err := s.complaintQuery(ctx, f).Count(&n).Error; err != nil {
		return 0, classify("count complaints", err)
	}
	return n, nil
}

func (s *Service) UpdateComplaintStatus(ctx context.Context, id string, from models.ComplaintStatus, upd models.ComplaintUpdate) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Complaint{}).
		Where("id = ? AND status = ?", id, from).
		Updates(upd.Columns())
	if res.Error != nil {
		return classify("update complaint", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Нічого не оновлено: або скарги немає, або її статус вже змінився.
	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.Complaint{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return classify("update complaint", err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "complaint not found")
	}
	return apperr.New(apperr.Conflict, "complaint was modified concurrently")
}

// --- feedback ---

func (s *Service) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	err := s.DB.WithContext(ctx).Create(f).Error
	if err != nil && apperr.Is(classify("", err), apperr.Conflict) {
		return apperr.Wrap(apperr.Conflict, "feedback already submitted", err)
	}
	return classify("create feedback", err)
}

func (s *Service) GetFeedbackByComplaint(ctx context.Context, complaintID string) (*models.Feedback, error) {
	var f models.Feedback
	if err := s.DB.WithContext(ctx).Where("complaint_id = ?", complaintID).First(&f).Error; err != nil {
		return nil, classify("feedback", err)
	}
	return &f, nil
}

func (s *Service) FeedbackRatingCounts(ctx context.Context, officerID string) (map[int]int, error) {
	var rows []struct {
		Rating int
		Total  int
	}
	err := s.DB.WithContext(ctx).
		Model(&models.Feedback{}).
		Select("rating, count(*) AS total").
		Where("officer_id = ?", officerID).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, classify("feedback ratings", err)
	}
	counts := make(map[int]int, len(rows))
	for _, r := range rows {
		counts[r.Rating] = r.Total
	}
	return counts, nil
}

// --- notifications ---

func (s *Service) CreateNotification(ctx context.Context, n *models.Notification) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return false, classify("create notification", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]models.Notification, error) {
	var out []models.Notification
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Order("created_at desc").Find(&out).Error; err != nil {
		return nil, classify("list notifications", err)
	}
	return out, nil
}

func (s *Service) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, classify("count notifications", err)
	}
	return n, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) error {
	var n models.Notification
	if err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return classify("notification", err)
	}
	if n.IsRead {
		return nil
	}
	err := s.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
	return classify("mark notification read", err)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if res.Error != nil {
		return 0, classify("mark notifications read", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeReadNotifications deletes read notifications created before the cutoff,
// except deduplicated ones whose complaint is still open.
func (s *Service) PurgeReadNotifications(ctx context.Context, before time.Time) (int64, error) {
	db := s.DB.WithContext(ctx)
	open := db.Model(&models.Complaint{}).Select("id").Where("status IN ?", models.OpenStatuses)
	res := db.
		Where("is_read = ? AND created_at < ?", true, before).
		Where("(dedup_key IS NULL OR complaint_id IS NULL OR complaint_id NOT IN (?))", open).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, classify("purge notifications", res.Error)
	}
	return res.RowsAffected, nil
}

// --- users ---

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(ctx context.Context, u *models.User) error {
	return classify("save user", s.DB.WithContext(ctx).Save(u).Error)
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, classify("user", err)
	}
	return &u, nil
}

func (s *Service) GetUserByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&u).Error; err != nil {
		return nil, classify("user", err)
	}
	return &u, nil
}
