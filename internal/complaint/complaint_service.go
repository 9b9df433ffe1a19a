// Package complaint provides the core logic for handling citizen complaints:
// filing them, moving them through their lifecycle, and collecting feedback.
package complaint

import (
	"context"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/config"
	"civictrack/backend/internal/lifecycle"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier is the part of the notification service the complaint service uses.
type Notifier interface {
	Notify(ctx context.Context, m notification.Message) (bool, error)
}

// Options tune a Service. Zero values fall back to the package defaults.
type Options struct {
	SLAWindow    time.Duration
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// Service handles the business logic for complaints.
type Service struct {
	Storage  storage.Storage
	notifier Notifier
	audit    *audit.Log
	validate *validator.Validate
	log      *zap.Logger

	slaWindow time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a new complaint service.
func NewService(s storage.Storage, notifier Notifier, auditLog *audit.Log, log *zap.Logger, opts Options) *Service {
	svc := &Service{
		Storage:   s,
		notifier:  notifier,
		audit:     auditLog,
		validate:  newValidator(),
		log:       log,
		slaWindow: opts.SLAWindow,
		timeout:   opts.StoreTimeout,
		now:       opts.Clock,
	}
	if svc.slaWindow <= 0 {
		svc.slaWindow = config.DefaultSLAWindow
	}
	if svc.timeout <= 0 {
		svc.timeout = config.DefaultStoreTimeout
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.audit == nil {
		svc.audit = audit.NewLog(config.DefaultAuditCapacity)
	}
	return svc
}

// CreateInput is the body of a new complaint.
type CreateInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Category    string   `json:"category" validate:"max=64"`
	Location    string   `json:"location" validate:"max=500"`
	Attachments []string `json:"attachments" validate:"max=10,dive,required,max=2048"`
}

// TransitionInput requests a status change.
type TransitionInput struct {
	Status     string `json:"status" validate:"required"`
	AssignedTo string `json:"assignedTo" validate:"max=128"`
	Reason     string `json:"reason" validate:"max=500"`
}

// ListInput narrows List.
type ListInput struct {
	Status string
	Limit  int
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func requireIdentity(who models.Identity) error {
	if who.UserID == "" {
		return apperr.New(apperr.Unauthenticated, "authentication required")
	}
	return nil
}

func validateID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return apperr.Wrap(apperr.ValidationError, "malformed complaint id", err)
	}
	return nil
}

// Create files a new complaint for a citizen. The SLA clock starts now.
func (s *Service) Create(ctx context.Context, who models.Identity, in CreateInput) (*models.Complaint, error) {
	if err := requireIdentity(who); err != nil {
		return nil, err
	}
	if !s.audit.Decide(who, audit.ActionRoleCheck, "complaint", "complaint:create", who.Role == models.RoleCitizen, "citizen role required") {
		return nil, apperr.New(apperr.Forbidden, "only citizens can file complaints")
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	now := s.now()
	deadline := now.Add(s.slaWindow)
	c := &models.Complaint{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Attachments: in.Attachments,
		Status:      models.StatusPending,
		CreatedBy:   who.UserID,
		SLADeadline: &deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.Storage.CreateComplaint(ctx, c); err != nil {
		s.logFailure("create complaint", err, zap.String("user_id", who.UserID))
		return nil, err
	}
	s.log.Info("complaint filed", zap.String("complaint_id", c.ID), zap.String("user_id", who.UserID))
	return c, nil
}

// Get returns one complaint. Staff see every complaint, citizens their own.
func (s *Service) Get(ctx context.Context, who models.Identity, id string) (*models.Complaint, error) {
	if err := requireIdentity(who); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	c, err := s.Storage.GetComplaint(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := who.Role == models.RoleAdmin || who.Role == models.RoleOfficer || c.CreatedBy == who.UserID
	if !s.audit.Decide(who, audit.ActionResourceAccess, "complaint/"+id, "complaint:read", allowed, "not the complaint owner") {
		return nil, apperr.New(apperr.Forbidden, "access denied")
	}
	return c, nil
}

// List returns the complaints the caller is concerned with: every complaint
// for admins, assigned ones for officers, own ones for citizens.
func (s *Service) List(ctx context.Context, who models.Identity, in ListInput) ([]models.Complaint, error) {
	if err := requireIdentity(who); err != nil {
		return nil, err
	}

	f := storage.ComplaintFilter{Limit: in.Limit}
	if in.Status != "" {
		st := models.ComplaintStatus(in.Status)
		if !st.Valid() {
			return nil, apperr.New(apperr.ValidationError, "unknown status")
		}
		f.Statuses = []models.ComplaintStatus{st}
	}
	switch who.Role {
	case models.RoleAdmin:
	case models.RoleOfficer:
		f.AssignedTo = who.UserID
	case models.RoleCitizen:
		f.CreatedBy = who.UserID
	default:
		return nil, apperr.New(apperr.Forbidden, "access denied")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Storage.ListComplaints(ctx, f)
}

// Transition moves a complaint to another status. The write is a
// compare-and-swap on the status read here, so of two concurrent transitions
// only one succeeds; the other gets Conflict.
func (s *Service) Transition(ctx context.Context, who models.Identity, id string, in TransitionInput) (*models.Complaint, error) {
	if err := requireIdentity(who); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.Storage.GetComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	to := models.ComplaintStatus(in.Status)
	upd, err := lifecycle.PlanTransition(who, c, to, in.AssignedTo, s.now())
	if apperr.Is(err, apperr.Forbidden) {
		s.audit.Decide(who, audit.ActionPermissionCheck, "complaint/"+id, "complaint:transition:"+in.Status, false, apperr.PublicMessage(err))
	}
	if err != nil {
		return nil, err
	}
	if to == models.StatusAssigned {
		if err := s.checkAssignee(ctx, in.AssignedTo); err != nil {
			return nil, err
		}
	}
	s.audit.Decide(who, audit.ActionPermissionCheck, "complaint/"+id, "complaint:transition:"+in.Status, true, "")

	from := c.Status
	if err := s.Storage.UpdateComplaintStatus(ctx, id, from, upd); err != nil {
		s.logFailure("transition complaint", err, zap.String("complaint_id", id))
		return nil, err
	}
	upd.Apply(c)
	metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.log.Info("complaint transitioned",
		zap.String("complaint_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", who.UserID),
		zap.String("reason", in.Reason))

	s.notify(ctx, notification.Message{
		UserID:      c.CreatedBy,
		Type:        models.NotifStatusChanged,
		ComplaintID: c.ID,
		Args:        map[string]string{"title": c.Title, "status": string(to)},
		Data:        map[string]interface{}{"from": string(from), "to": string(to)},
	})
	if to == models.StatusAssigned {
		s.notify(ctx, notification.Message{
			UserID:      in.AssignedTo,
			Type:        models.NotifAssigned,
			ComplaintID: c.ID,
			Args:        map[string]string{"title": c.Title},
		})
	}
	return c, nil
}

// checkAssignee rejects known users that are not officers. Identities are
// issued elsewhere, so an unknown user is accepted.
func (s *Service) checkAssignee(ctx context.Context, userID string) error {
	u, err := s.Storage.GetUser(ctx, userID)
	if apperr.Is(err, apperr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.Role != models.RoleOfficer {
		return apperr.New(apperr.ValidationError, "assignedTo must be an officer")
	}
	return nil
}

// notify sends m and only logs a failure: the state change it reports has
// already happened.
func (s *Service) notify(ctx context.Context, m notification.Message) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, m); err != nil {
		s.log.Error("failed to create notification",
			zap.String("type", string(m.Type)),
			zap.String("user_id", m.UserID),
			zap.String("complaint_id", m.ComplaintID),
			zap.Error(err))
	}
}

// logFailure logs store failures that are not plain client errors.
func (s *Service) logFailure(op string, err error, fields ...zap.Field) {
	switch apperr.KindOf(err) {
	case apperr.Internal, apperr.Transient:
		s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	}
}
