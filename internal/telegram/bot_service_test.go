package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"civictrack/backend/internal/auth"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeUnread struct {
	count int64
	who   models.Identity
}

func (f *fakeUnread) UnreadCount(_ context.Context, who models.Identity) (int64, error) {
	f.who = who
	return f.count, nil
}

type botFixture struct {
	bot    *BotService
	store  *storage.MemoryStore
	sender *fakeSender
	issuer *auth.Issuer
	unread *fakeUnread
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	f := &botFixture{
		store:  storage.NewMemoryStore(),
		sender: &fakeSender{},
		issuer: auth.NewIssuer("test-secret", "civictrack", time.Hour),
		unread: &fakeUnread{count: 3},
	}
	f.bot = NewBotService(f.sender, f.store, f.issuer, f.unread, newTestLocalizer(t), zap.NewNop())
	return f
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
			From:     &tgbotapi.User{ID: chatID, LanguageCode: "en"},
			Chat:     tgbotapi.Chat{ID: chatID},
		},
	}
}

func (f *botFixture) token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := f.issuer.Issue(models.Identity{UserID: userID, Role: role}, 0)
	require.NoError(t, err)
	return tok
}

func TestLink_StoresChatID(t *testing.T) {
	// Arrange
	f := newBotFixture(t)
	ctx := context.Background()

	// Act
	f.bot.handleUpdate(ctx, command(555, "/link "+f.token(t, "citizen-1", models.RoleCitizen)))

	// Assert
	u, err := f.store.GetUserByTelegramChatID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "citizen-1", u.ID)
	assert.Equal(t, models.RoleCitizen, u.Role)
	assert.Equal(t, f.bot.localizer.GetString("en", "bot.linked"), f.sender.last(t).Text)
}

func TestLink_KeepsExistingPreferences(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveUser(ctx, &models.User{ID: "officer-1", Role: models.RoleOfficer, Language: "uk", DisplayName: "Olena"}))

	f.bot.handleUpdate(ctx, command(42, "/link "+f.token(t, "officer-1", models.RoleOfficer)))

	u, err := f.store.GetUser(ctx, "officer-1")
	require.NoError(t, err)
	require.NotNil(t, u.TelegramChatID)
	assert.EqualValues(t, 42, *u.TelegramChatID)
	assert.Equal(t, "Olena", u.DisplayName)
	assert.Equal(t, f.bot.localizer.GetString("uk", "bot.linked"), f.sender.last(t).Text)
}

func TestLink_RejectsBadToken(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.bot.handleUpdate(ctx, command(555, "/link not-a-token"))

	_, err := f.store.GetUserByTelegramChatID(ctx, 555)
	assert.Error(t, err)
	assert.Equal(t, f.bot.localizer.GetString("en", "bot.link_failed"), f.sender.last(t).Text)

	f.bot.handleUpdate(ctx, command(555, "/link"))
	assert.Equal(t, f.bot.localizer.GetString("en", "bot.link_usage"), f.sender.last(t).Text)
}

func TestLink_ChatAlreadyTaken(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	f.bot.handleUpdate(ctx, command(555, "/link "+f.token(t, "citizen-1", models.RoleCitizen)))

	f.bot.handleUpdate(ctx, command(555, "/link "+f.token(t, "citizen-2", models.RoleCitizen)))

	assert.Equal(t, f.bot.localizer.GetString("en", "bot.link_taken"), f.sender.last(t).Text)
	u, err := f.store.GetUserByTelegramChatID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "citizen-1", u.ID)
}

func TestUnlink(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.bot.handleUpdate(ctx, command(9, "/unlink"))
	assert.Equal(t, f.bot.localizer.GetString("en", "bot.not_linked"), f.sender.last(t).Text)

	f.bot.handleUpdate(ctx, command(9, "/link "+f.token(t, "citizen-1", models.RoleCitizen)))
	f.bot.handleUpdate(ctx, command(9, "/unlink"))

	assert.Equal(t, f.bot.localizer.GetString("en", "bot.unlinked"), f.sender.last(t).Text)
	u, err := f.store.GetUser(ctx, "citizen-1")
	require.NoError(t, err)
	assert.Nil(t, u.TelegramChatID)
}

func TestUnread_UsesLinkedIdentity(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	f.bot.handleUpdate(ctx, command(9, "/link "+f.token(t, "officer-1", models.RoleOfficer)))

	f.bot.handleUpdate(ctx, command(9, "/unread"))

	assert.Contains(t, f.sender.last(t).Text, "3")
	assert.Equal(t, models.Identity{UserID: "officer-1", Role: models.RoleOfficer}, f.unread.who)
}

func TestLanguage_ChangesReplyLanguage(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	f.bot.handleUpdate(ctx, command(9, "/link "+f.token(t, "citizen-1", models.RoleCitizen)))

	f.bot.handleUpdate(ctx, command(9, "/language uk"))
	f.bot.handleUpdate(ctx, command(9, "/help"))

	assert.Equal(t, f.bot.localizer.GetString("uk", "bot.help"), f.sender.last(t).Text)
}

func TestHandleUpdate_IgnoresPlainText(t *testing.T) {
	f := newBotFixture(t)
	u := tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: tgbotapi.Chat{ID: 1}}}

	f.bot.handleUpdate(context.Background(), u)
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{})

	assert.Empty(t, f.sender.sent)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newBotFixture(t)
	updates := make(chan tgbotapi.Update, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.bot.Run(ctx, updates)
		close(done)
	}()
	updates <- command(1, "/start")
	assert.Eventually(t, func() bool {
		f.sender.mu.Lock()
		defer f.sender.mu.Unlock()
		return len(f.sender.sent) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNotifier_Publish(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sender := &fakeSender{}
	p := NewNotifier(store, sender, zap.NewNop())
	chat := int64(77)
	require.NoError(t, store.SaveUser(ctx, &models.User{ID: "linked", Role: models.RoleCitizen, TelegramChatID: &chat}))
	require.NoError(t, store.SaveUser(ctx, &models.User{ID: "unlinked", Role: models.RoleCitizen}))

	n := models.Notification{ID: "n1", UserID: "linked", Title: "Status changed", Message: "Complaint #1 is now IN_PROGRESS."}
	require.NoError(t, p.Publish(ctx, n))

	msg := sender.last(t)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Equal(t, "*Status changed*\nComplaint \\#1 is now IN\\_PROGRESS\\.", msg.Text)

	n.UserID = "unlinked"
	assert.NoError(t, p.Publish(ctx, n))
	n.UserID = "nobody"
	assert.NoError(t, p.Publish(ctx, n))
	assert.Len(t, sender.sent, 1)

	sender.err = errors.New("telegram down")
	n.UserID = "linked"
	assert.Error(t, p.Publish(ctx, n))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\[d\]\(e\)\~\>\#\+\-\=\|\{\}\.\!\\`, escapeMarkdown(`a_b*c[d](e)~>#+-=|{}.!\`))
	assert.Equal(t, "Скарга", escapeMarkdown("Скарга"))
}
