package telegram

import (
	"context"
	"errors"
	"testing"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockLanguageStorage is a mock implementation of the LanguageStorage interface
type MockLanguageStorage struct {
	mock.Mock
}

func (m *MockLanguageStorage) GetUserByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockLanguageStorage) SaveUser(ctx context.Context, u *models.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func newTestLocalizer(t *testing.T) *localization.Localizer {
	t.Helper()
	l, err := localization.NewLocalizer()
	require.NoError(t, err)
	return l
}

func TestHandleLanguageCommand_Switches(t *testing.T) {
	// Arrange
	l := newTestLocalizer(t)
	store := new(MockLanguageStorage)
	ctx := context.Background()
	user := &models.User{ID: "user-1", Language: "en"}

	store.On("GetUserByTelegramChatID", ctx, int64(12345)).Return(user, nil)
	store.On("SaveUser", ctx, mock.MatchedBy(func(u *models.User) bool { return u.Language == "uk" })).Return(nil)

	// Act
	reply := HandleLanguageCommand(ctx, 12345, " UK ", store, l, "en", zap.NewNop())

	// Assert
	assert.Equal(t, l.GetString("uk", "bot.language_set"), reply)
	store.AssertExpectations(t)
}

func TestHandleLanguageCommand_UnknownCode(t *testing.T) {
	l := newTestLocalizer(t)
	store := new(MockLanguageStorage)

	reply := HandleLanguageCommand(context.Background(), 1, "fr", store, l, "en", zap.NewNop())

	assert.Equal(t, l.GetString("en", "bot.language_usage"), reply)
	store.AssertNotCalled(t, "GetUserByTelegramChatID", mock.Anything, mock.Anything)
}

func TestHandleLanguageCommand_NotLinked(t *testing.T) {
	l := newTestLocalizer(t)
	store := new(MockLanguageStorage)
	store.On("GetUserByTelegramChatID", mock.Anything, int64(7)).Return(nil, apperr.New(apperr.NotFound, "user not found"))

	reply := HandleLanguageCommand(context.Background(), 7, "uk", store, l, "en", zap.NewNop())

	assert.Equal(t, l.GetString("en", "bot.not_linked"), reply)
	store.AssertNotCalled(t, "SaveUser", mock.Anything, mock.Anything)
}

func TestHandleLanguageCommand_SameLanguageSkipsSave(t *testing.T) {
	l := newTestLocalizer(t)
	store := new(MockLanguageStorage)
	store.On("GetUserByTelegramChatID", mock.Anything, int64(7)).Return(&models.User{ID: "u", Language: "uk"}, nil)

	reply := HandleLanguageCommand(context.Background(), 7, "uk", store, l, "uk", zap.NewNop())

	assert.Equal(t, l.GetString("uk", "bot.language_set"), reply)
	store.AssertNotCalled(t, "SaveUser", mock.Anything, mock.Anything)
}

func TestHandleLanguageCommand_SaveFails(t *testing.T) {
	l := newTestLocalizer(t)
	store := new(MockLanguageStorage)
	store.On("GetUserByTelegramChatID", mock.Anything, int64(7)).Return(&models.User{ID: "u", Language: "en"}, nil)
	store.On("SaveUser", mock.Anything, mock.Anything).Return(errors.New("db down"))

	reply := HandleLanguageCommand(context.Background(), 7, "uk", store, l, "en", zap.NewNop())

	assert.Equal(t, l.GetString("en", "bot.error"), reply)
}
