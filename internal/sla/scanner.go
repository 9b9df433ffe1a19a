// Package sla warns officers about complaints running out of time.
//
// The scanner does not schedule itself; something outside calls Sweep on a
// cadence. Every warning carries a dedup key of the form
// sla:<band>:<complaint>:<recipient>, so a complaint produces at most one
// notification per band and recipient no matter how often or how
// concurrently Sweep runs.
package sla

import (
	"context"
	"sync"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/config"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/storage"

	"go.uber.org/zap"
)

type Band string

const (
	BandNone        Band = ""
	BandApproaching Band = "approaching"
	BandBreached    Band = "breached"
)

// Classify places a deadline relative to now. A complaint is approaching when
// at most window remains and breached once the deadline has passed.
func Classify(now, deadline time.Time, window time.Duration) Band {
	remaining := deadline.Sub(now)
	switch {
	case remaining <= 0:
		return BandBreached
	case remaining <= window:
		return BandApproaching
	}
	return BandNone
}

// DedupKey identifies the one notification a recipient gets for a complaint
// entering band.
func DedupKey(band Band, complaintID, recipient string) string {
	return "sla:" + string(band) + ":" + complaintID + ":" + recipient
}

// Notifier is the part of the notification service the scanner uses.
type Notifier interface {
	Notify(ctx context.Context, m notification.Message) (bool, error)
}

// Locker excludes sweeps running in other processes. Acquire reports false
// when another holder has the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Options configure a Scanner.
type Options struct {
	ApproachingWindow time.Duration
	// NotifyCitizenOnBreach also warns the complaint's citizen on breach.
	NotifyCitizenOnBreach bool
	// EscalationRecipients are told about complaints nobody is assigned to.
	EscalationRecipients []string
	Clock                func() time.Time
}

// Result summarizes one sweep.
type Result struct {
	Timestamp time.Time `json:"timestamp"`
	Scanned   int       `json:"scanned"`
	Notified  int       `json:"notified"`
	Failed    int       `json:"failed"`
	// Skipped is set when another process held the sweep lock.
	Skipped bool `json:"skipped,omitempty"`
}

// Scanner finds complaints near or past their SLA deadline.
type Scanner struct {
	store    storage.ComplaintStore
	notifier Notifier
	locker   Locker
	opts     Options
	log      *zap.Logger

	// mu serializes sweeps within this process.
	mu sync.Mutex
}

// NewScanner creates a scanner. locker may be nil.
func NewScanner(store storage.ComplaintStore, notifier Notifier, locker Locker, log *zap.Logger, opts Options) *Scanner {
	if opts.ApproachingWindow <= 0 {
		opts.ApproachingWindow = config.DefaultApproachingWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Scanner{store: store, notifier: notifier, locker: locker, opts: opts, log: log}
}

// Sweep inspects every open complaint with a deadline once. A complaint that
// fails is logged and counted; the rest are still processed. An error is
// returned only when the complaints could not be listed at all.
func (s *Scanner) Sweep(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { metrics.SLASweepDurationSeconds.Observe(time.Since(start).Seconds()) }()

	now := s.opts.Clock()
	res := Result{Timestamp: now}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx)
		if err != nil {
			return res, apperr.Wrap(apperr.Transient, "sla sweep lock unavailable", err)
		}
		if !ok {
			s.log.Info("sla sweep skipped: lock held elsewhere")
			res.Skipped = true
			return res, nil
		}
		defer release()
	}

	complaints, err := s.store.ListComplaints(ctx, storage.ComplaintFilter{
		Statuses:       models.OpenStatuses,
		HasSLADeadline: true,
	})
	if err != nil {
		s.log.Error("sla sweep: listing complaints failed", zap.Error(err))
		return res, err
	}

	for i := range complaints {
		c := &complaints[i]
		res.Scanned++
		sent, err := s.check(ctx, now, c)
		res.Notified += sent
		if err != nil {
			res.Failed++
			metrics.SLASweepFailuresTotal.Inc()
			s.log.Error("sla sweep: complaint failed",
				zap.String("complaint_id", c.ID),
				zap.Error(err))
		}
	}

	s.log.Info("sla sweep finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("notified", res.Notified),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

// check notifies the recipients of one complaint and returns how many new
// notifications were stored. It keeps going after a failed recipient and
// reports the first error.
func (s *Scanner) check(ctx context.Context, now time.Time, c *models.Complaint) (int, error) {
	if c.SLADeadline == nil || !c.Status.IsOpen() {
		return 0, nil
	}
	band := Classify(now, *c.SLADeadline, s.opts.ApproachingWindow)
	if band == BandNone {
		return 0, nil
	}

	typ := models.NotifSLAApproaching
	if band == BandBreached {
		typ = models.NotifSLABreached
	}

	sent := 0
	var firstErr error
	for _, to := range s.recipients(c, band) {
		created, err := s.notifier.Notify(ctx, notification.Message{
			UserID:      to,
			Type:        typ,
			ComplaintID: c.ID,
			Args: map[string]string{
				"title":    c.Title,
				"deadline": c.SLADeadline.UTC().Format(time.RFC3339),
			},
			Data: map[string]interface{}{
				"band":     string(band),
				"deadline": c.SLADeadline.UTC().Format(time.RFC3339),
			},
			DedupKey: DedupKey(band, c.ID, to),
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if created {
			sent++
			metrics.SLANotificationsTotal.WithLabelValues(string(band)).Inc()
		}
	}
	return sent, firstErr
}

// recipients are the assigned officer, or the escalation list when nobody is
// assigned, plus the citizen on breach when configured.
func (s *Scanner) recipients(c *models.Complaint, band Band) []string {
	var out []string
	if c.AssignedTo != nil && *c.AssignedTo != "" {
		out = append(out, *c.AssignedTo)
	} else {
		out = append(out, s.opts.EscalationRecipients...)
	}
	if band == BandBreached && s.opts.NotifyCitizenOnBreach && c.CreatedBy != "" {
		out = append(out, c.CreatedBy)
	}
	return out
}
