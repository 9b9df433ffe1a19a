package models_test

import (
	"reflect"
	"testing"
	"time"

	"civictrack/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBeforeCreate_GeneratesUUID verifies that every entity hook fills a valid UUID.
func TestBeforeCreate_GeneratesUUID(t *testing.T) {
	complaint := &models.Complaint{Title: "Broken streetlight", Attachments: pq.StringArray{"a.jpg"}}
	feedback := &models.Feedback{Rating: 4}
	notification := &models.Notification{Title: "hi"}
	user := &models.User{Role: models.RoleCitizen}

	// Act - Call the hooks directly (GORM would call them automatically)
	require.NoError(t, complaint.BeforeCreate(nil))
	require.NoError(t, feedback.BeforeCreate(nil))
	require.NoError(t, notification.BeforeCreate(nil))
	require.NoError(t, user.BeforeCreate(nil))

	for _, id := range []string{complaint.ID, feedback.ID, notification.ID, user.ID} {
		parsed, err := uuid.Parse(id)
		assert.NoError(t, err, "ID must be a valid UUID string")
		assert.NotEqual(t, uuid.Nil, parsed)
	}
}

// TestBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	complaint := &models.Complaint{ID: existingID}

	err := complaint.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, complaint.ID, "BeforeCreate should preserve existing ID")
}

// TestStructTags catches accidental removal of the constraints the stores rely on.
func TestStructTags(t *testing.T) {
	feedbackType := reflect.TypeOf(models.Feedback{})
	complaintField, found := feedbackType.FieldByName("ComplaintID")
	require.True(t, found)
	assert.Contains(t, complaintField.Tag.Get("gorm"), "uniqueIndex", "one feedback per complaint")

	notificationType := reflect.TypeOf(models.Notification{})
	dedupField, found := notificationType.FieldByName("DedupKey")
	require.True(t, found)
	assert.Contains(t, dedupField.Tag.Get("gorm"), "uniqueIndex", "dedup key must be unique")
	assert.Equal(t, "-", dedupField.Tag.Get("json"), "dedup key is internal")

	attachmentsField, found := reflect.TypeOf(models.Complaint{}).FieldByName("Attachments")
	require.True(t, found)
	assert.Contains(t, attachmentsField.Tag.Get("gorm"), "type:text[]", "attachments use a PostgreSQL array")
}

func TestComplaintStatus(t *testing.T) {
	tests := []struct {
		status   models.ComplaintStatus
		valid    bool
		open     bool
		terminal bool
	}{
		{models.StatusPending, true, true, false},
		{models.StatusVerified, true, true, false},
		{models.StatusAssigned, true, true, false},
		{models.StatusInProgress, true, true, false},
		{models.StatusResolved, true, false, false},
		{models.StatusClosed, true, false, true},
		{models.StatusRejected, true, false, true},
		{models.ComplaintStatus("ARCHIVED"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.open, tt.status.IsOpen())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := models.ParseRole(" officer ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOfficer, role)

	_, err = models.ParseRole("superuser")
	assert.Error(t, err)
}

func TestComplaintUpdate_ApplyKeepsUnsetFields(t *testing.T) {
	assignedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	officer := "officer-1"
	c := &models.Complaint{Status: models.StatusAssigned, AssignedTo: &officer, AssignedAt: &assignedAt}

	resolvedAt := assignedAt.Add(time.Hour)
	models.ComplaintUpdate{Status: models.StatusResolved, ResolvedAt: &resolvedAt, UpdatedAt: resolvedAt}.Apply(c)

	assert.Equal(t, models.StatusResolved, c.Status)
	assert.Equal(t, &officer, c.AssignedTo)
	assert.Equal(t, assignedAt, *c.AssignedAt)
	assert.Equal(t, resolvedAt, *c.ResolvedAt)
	assert.Nil(t, c.ClosedAt)
}

func TestComplaintUpdate_Columns(t *testing.T) {
	now := time.Now()
	cols := models.ComplaintUpdate{Status: models.StatusClosed, ClosedAt: &now, UpdatedAt: now}.Columns()

	assert.Equal(t, models.StatusClosed, cols["status"])
	assert.Equal(t, now, cols["closed_at"])
	assert.NotContains(t, cols, "assigned_to")
	assert.NotContains(t, cols, "resolved_at")
}
