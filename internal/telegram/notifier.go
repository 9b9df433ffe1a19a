// Package telegram delivers notifications to Telegram chats and runs the bot
// that lets users link a chat to their account.
package telegram

import (
	"context"
	"fmt"
	"strings"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI used to send messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes stored notifications to the recipient's linked chat.
type Notifier struct {
	users  storage.UserStore
	sender Sender
	log    *zap.Logger
}

func NewNotifier(users storage.UserStore, sender Sender, log *zap.Logger) *Notifier {
	return &Notifier{users: users, sender: sender, log: log}
}

// Publish sends n to the recipient's chat. Users without a linked chat are
// skipped silently.
func (p *Notifier) Publish(ctx context.Context, n models.Notification) error {
	u, err := p.users.GetUser(ctx, n.UserID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil
		}
		return err
	}
	if u.TelegramChatID == nil {
		return nil
	}

	msg := tgbotapi.NewMessage(*u.TelegramChatID, formatNotification(n))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := p.sender.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", *u.TelegramChatID, err)
	}
	p.log.Debug("telegram: notification sent", zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))
	return nil
}

func formatNotification(n models.Notification) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(escapeMarkdown(n.Title))
	b.WriteString("*")
	if n.Message != "" {
		b.WriteString("\n")
		b.WriteString(escapeMarkdown(n.Message))
	}
	return b.String()
}

// markdownV2Special — символи, які MarkdownV2 вимагає екранувати.
const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
