package telegram

import (
	"context"
	"strings"

	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/models"

	"go.uber.org/zap"
)

// LanguageStorage defines the storage methods required by the language handler.
type LanguageStorage interface {
	GetUserByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

// HandleLanguageCommand processes /language <code> and returns the reply.
// The confirmation is written in the newly selected language.
func HandleLanguageCommand(ctx context.Context, chatID int64, args string, s LanguageStorage, l *localization.Localizer, lang string, logger *zap.Logger) string {
	code := strings.ToLower(strings.TrimSpace(args))
	if !knownLanguage(l, code) {
		return l.GetString(lang, "bot.language_usage")
	}

	user, err := s.GetUserByTelegramChatID(ctx, chatID)
	if err != nil {
		return l.GetString(lang, "bot.not_linked")
	}
	if user.Language == code {
		return l.GetString(code, "bot.language_set")
	}

	user.Language = code
	if err := s.SaveUser(ctx, user); err != nil {
		logger.Error("telegram: update language failed", zap.String("user_id", user.ID), zap.Error(err))
		return l.GetString(lang, "bot.error")
	}
	return l.GetString(code, "bot.language_set")
}

func knownLanguage(l *localization.Localizer, code string) bool {
	if code == "" {
		return false
	}
	for _, lang := range l.Languages() {
		if lang == code {
			return true
		}
	}
	return false
}
