// Package audit keeps a bounded in-memory log of authorization decisions.
// It is operational tooling: entries do not survive a restart.
package audit

import (
	"sync"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"
)

type Action string

const (
	ActionPermissionCheck Action = "PERMISSION_CHECK"
	ActionRoleCheck       Action = "ROLE_CHECK"
	ActionResourceAccess  Action = "RESOURCE_ACCESS"
	ActionAPIAccess       Action = "API_ACCESS"
)

type Result string

const (
	ResultAllowed Result = "ALLOWED"
	ResultDenied  Result = "DENIED"
)

// ResultOf maps a boolean decision onto a Result.
func ResultOf(allowed bool) Result {
	if allowed {
		return ResultAllowed
	}
	return ResultDenied
}

// Entry is one authorization decision.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Action     Action            `json:"action"`
	Result     Result            `json:"result"`
	UserID     string            `json:"userId,omitempty"`
	Role       models.Role       `json:"role,omitempty"`
	Resource   string            `json:"resource,omitempty"`
	Permission string            `json:"permission,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Filter selects entries in Query. Zero fields match everything; Since and
// Until are inclusive.
type Filter struct {
	UserID string
	Action Action
	Result Result
	Since  time.Time
	Until  time.Time
	Limit  int
}

func (f Filter) match(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Result != "" && e.Result != f.Result {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Stats summarizes the entries currently held.
type Stats struct {
	Total    int            `json:"total"`
	Capacity int            `json:"capacity"`
	ByAction map[Action]int `json:"byAction"`
	ByRole   map[string]int `json:"byRole"`
	ByResult map[Result]int `json:"byResult"`
}

// Log is a fixed-capacity ring buffer. Once full, each Record overwrites the
// oldest entry. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int // slot the next Record writes
	size    int
	now     func() time.Time
}

// NewLog creates a log holding at most capacity entries.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{entries: make([]Entry, capacity), now: time.Now}
}

// SetClock replaces the time source used to stamp entries without a timestamp.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Record appends e in constant time.
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
	l.mu.Unlock()

	metrics.AuditDecisionsTotal.WithLabelValues(string(e.Action), string(e.Result)).Inc()
}

// Decide records a decision for who and returns allowed unchanged, so call
// sites can write `if !log.Decide(...) { ... }`.
func (l *Log) Decide(who models.Identity, action Action, resource, permission string, allowed bool, reason string) bool {
	l.Record(Entry{
		Action:     action,
		Result:     ResultOf(allowed),
		UserID:     who.UserID,
		Role:       who.Role,
		Resource:   resource,
		Permission: permission,
		Reason:     reason,
	})
	return allowed
}

// Query returns matching entries, newest first.
func (l *Log) Query(f Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0)
	for i := 0; i < l.size; i++ {
		idx := (l.next - 1 - i + len(l.entries)) % len(l.entries)
		e := l.entries[idx]
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Statistics counts the held entries by action, role and result.
func (l *Log) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Total:    l.size,
		Capacity: len(l.entries),
		ByAction: make(map[Action]int),
		ByRole:   make(map[string]int),
		ByResult: make(map[Result]int),
	}
	for i := 0; i < l.size; i++ {
		e := l.entries[(l.next-1-i+len(l.entries))%len(l.entries)]
		s.ByAction[e.Action]++
		role := string(e.Role)
		if role == "" {
			role = "ANONYMOUS"
		}
		s.ByRole[role]++
		s.ByResult[e.Result]++
	}
	return s
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Clear wipes the log and returns how many entries were dropped. Only admins
// may clear it; a refused attempt is itself recorded.
func (l *Log) Clear(actor models.Identity) (int, error) {
	if actor.Role != models.RoleAdmin {
		l.Decide(actor, ActionRoleCheck, "audit-log", "audit:clear", false, "admin role required")
		return 0, apperr.New(apperr.Forbidden, "only admins can clear the audit log")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.size
	for i := range l.entries {
		l.entries[i] = Entry{}
	}
	l.next, l.size = 0, 0
	return n, nil
}
