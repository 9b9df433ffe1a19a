package telegram

import (
	"context"
	"strconv"
	"strings"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TokenParser validates the access tokens users paste into /link.
type TokenParser interface {
	Parse(raw string) (models.Identity, error)
}

// UnreadCounter is the part of the notification service used by /unread.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, who models.Identity) (int64, error)
}

// BotService receives Telegram updates and answers the account commands.
type BotService struct {
	sender      Sender
	users       storage.UserStore
	tokens      TokenParser
	unread      UnreadCounter
	localizer   *localization.Localizer
	log         *zap.Logger
	defaultLang string
}

// NewBotService creates a new BotService instance.
func NewBotService(sender Sender, users storage.UserStore, tokens TokenParser, unread UnreadCounter, localizer *localization.Localizer, log *zap.Logger) *BotService {
	return &BotService{
		sender:      sender,
		users:       users,
		tokens:      tokens,
		unread:      unread,
		localizer:   localizer,
		log:         log,
		defaultLang: localization.FallbackLanguage,
	}
}

// SetDefaultLanguage sets the reply language for chats that are not linked.
func (s *BotService) SetDefaultLanguage(lang string) {
	if lang != "" {
		s.defaultLang = lang
	}
}

// Run handles updates until ctx is cancelled or the channel is closed.
func (s *BotService) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	s.log.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(ctx, update)
		}
	}
}

func (s *BotService) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	lang := s.chatLanguage(ctx, msg)

	var reply string
	switch msg.Command() {
	case "start", "help":
		reply = s.localizer.GetString(lang, "bot.help")
	case "link":
		reply = s.handleLink(ctx, chatID, lang, strings.TrimSpace(msg.CommandArguments()))
	case "unlink":
		reply = s.handleUnlink(ctx, chatID, lang)
	case "unread":
		reply = s.handleUnread(ctx, chatID, lang)
	case "language", "lang":
		reply = HandleLanguageCommand(ctx, chatID, msg.CommandArguments(), s.users, s.localizer, lang, s.log)
	default:
		reply = s.localizer.GetString(lang, "bot.help")
	}
	s.reply(chatID, reply)
}

func (s *BotService) handleLink(ctx context.Context, chatID int64, lang, token string) string {
	if token == "" {
		return s.localizer.GetString(lang, "bot.link_usage")
	}
	who, err := s.tokens.Parse(token)
	if err != nil {
		return s.localizer.GetString(lang, "bot.link_failed")
	}

	if other, err := s.users.GetUserByTelegramChatID(ctx, chatID); err == nil && other.ID != who.UserID {
		return s.localizer.GetString(lang, "bot.link_taken")
	}

	u, err := s.users.GetUser(ctx, who.UserID)
	switch {
	case apperr.Is(err, apperr.NotFound):
		u = &models.User{ID: who.UserID, Language: lang}
	case err != nil:
		s.log.Error("telegram: load user failed", zap.String("user_id", who.UserID), zap.Error(err))
		return s.localizer.GetString(lang, "bot.error")
	}
	u.Role = who.Role
	u.TelegramChatID = &chatID

	if err := s.users.SaveUser(ctx, u); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return s.localizer.GetString(lang, "bot.link_taken")
		}
		s.log.Error("telegram: link failed", zap.String("user_id", who.UserID), zap.Error(err))
		return s.localizer.GetString(lang, "bot.error")
	}
	s.log.Info("telegram: chat linked", zap.String("user_id", u.ID), zap.Int64("chat_id", chatID))
	return s.localizer.GetString(s.userLanguage(u), "bot.linked")
}

func (s *BotService) handleUnlink(ctx context.Context, chatID int64, lang string) string {
	u, ok, reply := s.linkedUser(ctx, chatID, lang)
	if !ok {
		return reply
	}
	u.TelegramChatID = nil
	if err := s.users.SaveUser(ctx, u); err != nil {
		s.log.Error("telegram: unlink failed", zap.String("user_id", u.ID), zap.Error(err))
		return s.localizer.GetString(lang, "bot.error")
	}
	s.log.Info("telegram: chat unlinked", zap.String("user_id", u.ID), zap.Int64("chat_id", chatID))
	return s.localizer.GetString(lang, "bot.unlinked")
}

func (s *BotService) handleUnread(ctx context.Context, chatID int64, lang string) string {
	u, ok, reply := s.linkedUser(ctx, chatID, lang)
	if !ok {
		return reply
	}
	n, err := s.unread.UnreadCount(ctx, models.Identity{UserID: u.ID, Role: u.Role})
	if err != nil {
		s.log.Error("telegram: unread count failed", zap.String("user_id", u.ID), zap.Error(err))
		return s.localizer.GetString(lang, "bot.error")
	}
	return s.localizer.Format(lang, "bot.unread", map[string]string{"count": strconv.FormatInt(n, 10)})
}

// linkedUser returns the account linked to chatID, or the reply to send when
// there is none.
func (s *BotService) linkedUser(ctx context.Context, chatID int64, lang string) (*models.User, bool, string) {
	u, err := s.users.GetUserByTelegramChatID(ctx, chatID)
	switch {
	case apperr.Is(err, apperr.NotFound):
		return nil, false, s.localizer.GetString(lang, "bot.not_linked")
	case err != nil:
		s.log.Error("telegram: load linked user failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return nil, false, s.localizer.GetString(lang, "bot.error")
	}
	return u, true, ""
}

// chatLanguage picks the linked user's language, then the Telegram client
// language, then the default.
func (s *BotService) chatLanguage(ctx context.Context, msg *tgbotapi.Message) string {
	if u, err := s.users.GetUserByTelegramChatID(ctx, msg.Chat.ID); err == nil && u.Language != "" {
		return u.Language
	}
	if msg.From != nil && knownLanguage(s.localizer, msg.From.LanguageCode) {
		return msg.From.LanguageCode
	}
	return s.defaultLang
}

func (s *BotService) userLanguage(u *models.User) string {
	if u.Language != "" {
		return u.Language
	}
	return s.defaultLang
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.log.Warn("telegram: reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
