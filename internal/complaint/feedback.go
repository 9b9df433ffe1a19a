package complaint

import (
	"context"
	"strconv"

	"civictrack/backend/internal/analysis"
	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/lifecycle"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/storage"
	"civictrack/backend/internal/visibility"

	"go.uber.org/zap"
)

// FeedbackInput is the citizen's rating of a resolved complaint.
type FeedbackInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=300"`
}

// SubmitFeedback records the citizen's feedback and closes the complaint.
// Both writes happen in one transaction that holds a row lock on the
// complaint, so no reader sees one without the other and of two concurrent
// submissions exactly one wins.
func (s *Service) SubmitFeedback(ctx context.Context, who *models.Identity, complaintID string, in FeedbackInput) (fb *models.Feedback, err error) {
	defer func() {
		code := "OK"
		if err != nil {
			code = apperr.KindOf(err).Code()
		}
		metrics.FeedbackSubmissionsTotal.WithLabelValues(code).Inc()
	}()

	if who == nil || who.UserID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := validateID(complaintID); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var c *models.Complaint
	err = s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		var err error
		c, err = tx.GetComplaintForUpdate(ctx, complaintID)
		if err != nil {
			return err
		}
		existing, err := feedbackOf(ctx, tx, complaintID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckFeedback(who, c, existing); err != nil {
			return err
		}

		now := s.now()
		fb = &models.Feedback{
			ComplaintID: complaintID,
			Rating:      in.Rating,
			Comment:     in.Comment,
			CitizenID:   c.CreatedBy,
			OfficerID:   *c.AssignedTo,
			CreatedAt:   now,
		}
		if err := tx.CreateFeedback(ctx, fb); err != nil {
			return err
		}
		upd := lifecycle.CloseOnFeedback(now)
		if err := tx.UpdateComplaintStatus(ctx, complaintID, models.StatusResolved, upd); err != nil {
			return err
		}
		upd.Apply(c)
		return nil
	})

	switch {
	case apperr.Is(err, apperr.Forbidden):
		s.audit.Decide(*who, audit.ActionResourceAccess, "complaint/"+complaintID, "feedback:create", false, "not the complaint owner")
		return nil, err
	case err != nil:
		s.logFailure("submit feedback", err, zap.String("complaint_id", complaintID))
		return nil, err
	}
	s.audit.Decide(*who, audit.ActionResourceAccess, "complaint/"+complaintID, "feedback:create", true, "")
	s.log.Info("feedback submitted",
		zap.String("complaint_id", complaintID),
		zap.String("feedback_id", fb.ID),
		zap.Int("rating", fb.Rating))

	// The officer learns the rating, never the comment.
	s.notify(ctx, notification.Message{
		UserID:      fb.OfficerID,
		Type:        models.NotifFeedbackReceived,
		ComplaintID: complaintID,
		Args:        map[string]string{"title": c.Title, "rating": strconv.Itoa(fb.Rating)},
		Data:        map[string]interface{}{"rating": fb.Rating},
	})
	return fb, nil
}

// GetFeedback returns the feedback of a complaint as the caller may see it.
func (s *Service) GetFeedback(ctx context.Context, who models.Identity, complaintID string) (visibility.Result, error) {
	if err := requireIdentity(who); err != nil {
		return visibility.Result{}, err
	}
	if err := validateID(complaintID); err != nil {
		return visibility.Result{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.Storage.GetComplaint(ctx, complaintID)
	if err != nil {
		return visibility.Result{}, err
	}
	if !s.audit.Decide(who, audit.ActionResourceAccess, "complaint/"+complaintID, "feedback:read", visibility.CanView(who, c), "outside feedback visibility") {
		return visibility.Result{}, visibility.ErrAccessDenied
	}

	fb, err := feedbackOf(ctx, s.Storage, complaintID)
	if err != nil {
		return visibility.Result{}, err
	}
	return visibility.VisibleFeedback(who, c, fb)
}

// OfficerSummary aggregates the ratings an officer received. Officers always
// get their own figures; admins name the officer.
func (s *Service) OfficerSummary(ctx context.Context, who models.Identity, officerID string) (analysis.OfficerSummary, error) {
	if err := requireIdentity(who); err != nil {
		return analysis.OfficerSummary{}, err
	}
	switch who.Role {
	case models.RoleOfficer:
		officerID = who.UserID
	case models.RoleAdmin:
		if officerID == "" {
			return analysis.OfficerSummary{}, apperr.New(apperr.ValidationError, "officerId is required")
		}
	default:
		s.audit.Decide(who, audit.ActionRoleCheck, "feedback", "feedback:summary", false, "officer or admin role required")
		return analysis.OfficerSummary{}, apperr.New(apperr.Forbidden, "access denied")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	counts, err := s.Storage.FeedbackRatingCounts(ctx, officerID)
	if err != nil {
		return analysis.OfficerSummary{}, err
	}
	return analysis.Summarize(counts), nil
}

// feedbackOf returns the complaint's feedback, or nil when there is none.
func feedbackOf(ctx context.Context, st storage.FeedbackStore, complaintID string) (*models.Feedback, error) {
	fb, err := st.GetFeedbackByComplaint(ctx, complaintID)
	if apperr.Is(err, apperr.NotFound) {
		return nil, nil
	}
	return fb, err
}
