package audit_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_EvictsOldestBeyondCapacity(t *testing.T) {
	log := audit.NewLog(1000)

	for i := 0; i < 1001; i++ {
		log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultAllowed, UserID: fmt.Sprintf("user-%d", i)})
	}

	assert.Equal(t, 1000, log.Statistics().Total)
	assert.Empty(t, log.Query(audit.Filter{UserID: "user-0"}), "oldest entry must be evicted")
	assert.Len(t, log.Query(audit.Filter{UserID: "user-1"}), 1)
	assert.Len(t, log.Query(audit.Filter{UserID: "user-1000"}), 1)
}

func TestLog_QueryNewestFirstAndFilters(t *testing.T) {
	log := audit.NewLog(10)
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	log.Record(audit.Entry{Timestamp: base, Action: audit.ActionRoleCheck, Result: audit.ResultDenied, UserID: "u1", Role: models.RoleCitizen})
	log.Record(audit.Entry{Timestamp: base.Add(time.Minute), Action: audit.ActionAPIAccess, Result: audit.ResultAllowed, UserID: "a1", Role: models.RoleAdmin})
	log.Record(audit.Entry{Timestamp: base.Add(2 * time.Minute), Action: audit.ActionRoleCheck, Result: audit.ResultAllowed, UserID: "u1", Role: models.RoleCitizen})

	all := log.Query(audit.Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(2*time.Minute), all[0].Timestamp)
	assert.Equal(t, base, all[2].Timestamp)

	tests := []struct {
		name   string
		filter audit.Filter
		want   int
	}{
		{"user", audit.Filter{UserID: "u1"}, 2},
		{"action", audit.Filter{Action: audit.ActionAPIAccess}, 1},
		{"result", audit.Filter{Result: audit.ResultDenied}, 1},
		{"since inclusive", audit.Filter{Since: base.Add(time.Minute)}, 2},
		{"until inclusive", audit.Filter{Until: base.Add(time.Minute)}, 2},
		{"window", audit.Filter{Since: base.Add(30 * time.Second), Until: base.Add(90 * time.Second)}, 1},
		{"limit", audit.Filter{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, log.Query(tt.filter), tt.want)
		})
	}
}

func TestLog_Statistics(t *testing.T) {
	log := audit.NewLog(5)
	admin := models.Identity{UserID: "a1", Role: models.RoleAdmin}
	citizen := models.Identity{UserID: "u1", Role: models.RoleCitizen}

	assert.True(t, log.Decide(admin, audit.ActionPermissionCheck, "complaint:c1", "complaint:transition", true, ""))
	assert.False(t, log.Decide(citizen, audit.ActionRoleCheck, "/admin/audit-logs", "ADMIN", false, "role not allowed"))
	log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultDenied})

	s := log.Statistics()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 5, s.Capacity)
	assert.Equal(t, 1, s.ByAction[audit.ActionPermissionCheck])
	assert.Equal(t, 1, s.ByRole["ADMIN"])
	assert.Equal(t, 1, s.ByRole["CITIZEN"])
	assert.Equal(t, 1, s.ByRole["ANONYMOUS"])
	assert.Equal(t, 2, s.ByResult[audit.ResultDenied])
}

func TestLog_StampsMissingTimestamp(t *testing.T) {
	log := audit.NewLog(2)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log.SetClock(func() time.Time { return fixed })

	log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultAllowed})
	assert.Equal(t, fixed, log.Query(audit.Filter{})[0].Timestamp)
}

func TestLog_ClearIsAdminOnly(t *testing.T) {
	log := audit.NewLog(10)
	log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultAllowed})

	_, err := log.Clear(models.Identity{UserID: "o1", Role: models.RoleOfficer})
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.Equal(t, 2, log.Len(), "refused clear is recorded")

	n, err := log.Clear(models.Identity{UserID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, log.Len())
	assert.Empty(t, log.Query(audit.Filter{}))

	log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultAllowed, UserID: "after"})
	assert.Equal(t, "after", log.Query(audit.Filter{})[0].UserID)
}

func TestLog_ConcurrentRecordLosesNothing(t *testing.T) {
	log := audit.NewLog(1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultAllowed, UserID: fmt.Sprintf("w%d", w)})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, log.Len())
	for w := 0; w < 8; w++ {
		assert.Len(t, log.Query(audit.Filter{UserID: fmt.Sprintf("w%d", w)}), 100)
	}

	// Past capacity the length is pinned.
	for i := 0; i < 500; i++ {
		log.Record(audit.Entry{Action: audit.ActionAPIAccess, Result: audit.ResultAllowed})
	}
	assert.Equal(t, 1000, log.Len())
}
