package bot

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"raidbot/internal/engine"
	"raidbot/internal/models"
	"raidbot/internal/storage"
	"raidbot/internal/storage/pg"
)

type likeAll struct{}

func (likeAll) HasLiked(ctx context.Context, account *models.Account, tweetID string) (bool, error) {
	return true, nil
}

type noopNotifier struct{}

func (noopNotifier) PostSubmitted(ctx context.Context, ownerName string)           {}
func (noopNotifier) PostApproved(ctx context.Context, ownerID int64)               {}
func (noopNotifier) PostRejected(ctx context.Context, ownerID int64, reason string) {}
func (noopNotifier) ReferralCredited(ctx context.Context, referrerID int64, amount float64) {}
func (noopNotifier) CompletionRewarded(ctx context.Context, participantID int64, amount float64) {}
func (noopNotifier) VerificationRequested(ctx context.Context, ownerID, postID, participantID int64, participantName, link string) {
}
func (noopNotifier) OwnerSanctioned(ctx context.Context, ownerID int64, until time.Time) {}

// newTestBot builds a bot with a nil Telegram API against an in-memory
// database; sendMessage is a no-op without an API, so handlers run end to end.
func newTestBot(t *testing.T, cfg engine.Config, adminIDs ...int64) (*Bot, *engine.Engine, *pg.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := pg.NewWithDB(gormDB)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	eng := engine.New(cfg, store, likeAll{}, noopNotifier{}, zap.NewNop())

	admins := make(map[int64]bool)
	for _, id := range adminIDs {
		admins[id] = true
	}
	bot := &Bot{
		engine:       eng,
		admins:       admins,
		awaitingPost: make(map[int64]bool),
		logger:       zap.NewNop(),
	}
	return bot, eng, store
}

func userMessage(userID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Test"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(cmd)},
		}
	}
	return msg
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "test",
		From:    &tgbotapi.User{ID: userID, FirstName: "Test"},
		Data:    data,
		Message: userMessage(userID, ""),
	}
}

func TestHandleStart_Registers(t *testing.T) {
	bot, eng, _ := newTestBot(t, engine.DefaultConfig())

	bot.handleMessage(userMessage(100, "/start"))

	account, err := eng.Account(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2.0, account.Slots)
	assert.Equal(t, "Test", account.Name)
}

func TestHandleStart_ReferralArgument(t *testing.T) {
	bot, eng, _ := newTestBot(t, engine.DefaultConfig())

	bot.handleMessage(userMessage(100, "/start"))
	bot.handleMessage(userMessage(200, "/start 100"))

	referrer, err := eng.Account(context.Background(), 100)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, referrer.Slots, 1e-9)
	assert.Equal(t, 1, referrer.ReferralCount)

	referee, err := eng.Account(context.Background(), 200)
	require.NoError(t, err)
	require.NotNil(t, referee.ReferredBy)
	assert.Equal(t, int64(100), *referee.ReferredBy)
}

func TestPostConversation(t *testing.T) {
	bot, eng, store := newTestBot(t, engine.DefaultConfig())
	ctx := context.Background()

	bot.handleMessage(userMessage(100, "/start"))
	bot.handleMessage(userMessage(100, "/post"))
	assert.True(t, bot.isAwaitingPost(100))

	// A broken link keeps the conversation open for a retry.
	bot.handleMessage(userMessage(100, "not a link"))
	assert.True(t, bot.isAwaitingPost(100))

	bot.handleMessage(userMessage(100, "https://x.com/someone/status/12345"))
	assert.False(t, bot.isAwaitingPost(100))

	posts, err := store.PendingPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "https://x.com/someone/status/12345", posts[0].Link)

	_, err = eng.Account(ctx, 100)
	require.NoError(t, err)
}

func TestPostConversation_CommandInterrupts(t *testing.T) {
	bot, _, _ := newTestBot(t, engine.DefaultConfig())

	bot.handleMessage(userMessage(100, "/start"))
	bot.handleMessage(userMessage(100, "/post"))
	require.True(t, bot.isAwaitingPost(100))

	bot.handleMessage(userMessage(100, "/slots"))
	assert.False(t, bot.isAwaitingPost(100))
}

func TestPostConversation_CancelButton(t *testing.T) {
	bot, _, _ := newTestBot(t, engine.DefaultConfig())

	bot.handleMessage(userMessage(100, "/start"))
	bot.handleMessage(userMessage(100, "/post"))
	require.True(t, bot.isAwaitingPost(100))

	bot.handleMessage(userMessage(100, btnCancel))
	assert.False(t, bot.isAwaitingPost(100))
}

func TestReviewCallback_ApproveAndReject(t *testing.T) {
	bot, eng, store := newTestBot(t, engine.DefaultConfig(), 1)
	ctx := context.Background()

	bot.handleMessage(userMessage(100, "/start"))
	post, err := eng.Submit(ctx, 100, "https://x.com/a/status/1")
	require.NoError(t, err)

	// Non-admins are ignored.
	bot.handleCallbackQuery(callback(100, "approve|"+itoa(post.ID)))
	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostPending, got.Status)

	bot.handleCallbackQuery(callback(1, "approve|"+itoa(post.ID)))
	got, err = store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostApproved, got.Status)

	// Re-reviewing an already settled post is harmless.
	bot.handleCallbackQuery(callback(1, "reject|"+itoa(post.ID)))
	got, err = store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostApproved, got.Status)
}

func TestDoneCallback_RewardsParticipant(t *testing.T) {
	bot, eng, _ := newTestBot(t, engine.DefaultConfig(), 1)
	ctx := context.Background()

	bot.handleMessage(userMessage(100, "/start"))
	bot.handleMessage(userMessage(200, "/start"))
	post, err := eng.Submit(ctx, 100, "https://x.com/a/status/1")
	require.NoError(t, err)
	_, err = eng.Approve(ctx, post.ID)
	require.NoError(t, err)
	require.NoError(t, eng.LinkTwitter(ctx, 200, storage.TwitterLink{
		Handle: "bob", UserID: "2", AccessToken: "tok",
	}))

	bot.handleCallbackQuery(callback(200, "done|"+itoa(post.ID)))

	participant, err := eng.Account(ctx, 200)
	require.NoError(t, err)
	assert.InDelta(t, 2.1, participant.Slots, 1e-9)

	// The owner clicking their own Done button earns nothing.
	bot.handleCallbackQuery(callback(100, "done|"+itoa(post.ID)))
	owner, err := eng.Account(ctx, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, owner.Slots, 1e-9)
}

func TestVerificationCallback_OwnerConfirms(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.VerifyMode = engine.VerifyManual
	bot, eng, _ := newTestBot(t, cfg, 1)
	ctx := context.Background()

	bot.handleMessage(userMessage(100, "/start"))
	bot.handleMessage(userMessage(200, "/start"))
	post, err := eng.Submit(ctx, 100, "https://x.com/a/status/1")
	require.NoError(t, err)
	_, err = eng.Approve(ctx, post.ID)
	require.NoError(t, err)

	bot.handleCallbackQuery(callback(200, "done|"+itoa(post.ID)))

	data := "confirm|" + itoa(post.ID) + "|200"
	// Someone other than the owner cannot resolve the claim.
	bot.handleCallbackQuery(callback(999, data))
	participant, err := eng.Account(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 2.0, participant.Slots)

	bot.handleCallbackQuery(callback(100, data))
	participant, err = eng.Account(ctx, 200)
	require.NoError(t, err)
	assert.InDelta(t, 2.1, participant.Slots, 1e-9)
}

func TestParseID(t *testing.T) {
	id, ok := parseID([]string{"approve", "42"}, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = parseID([]string{"approve"}, 1)
	assert.False(t, ok)

	_, ok = parseID([]string{"approve", "nope"}, 1)
	assert.False(t, ok)
}

func TestBuildExport(t *testing.T) {
	bot, eng, _ := newTestBot(t, engine.DefaultConfig(), 1)
	ctx := context.Background()

	bot.handleMessage(userMessage(100, "/start"))
	require.NoError(t, eng.LinkTwitter(ctx, 100, storage.TwitterLink{
		Handle: "alice", UserID: "1", AccessToken: "tok",
	}))

	data, err := bot.buildExport(ctx)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "telegram_id", records[0][0])
	assert.Equal(t, "100", records[1][0])
	assert.Equal(t, "alice", records[1][2])
	assert.Equal(t, "2", records[1][3])
}

func TestFormatSlots(t *testing.T) {
	assert.Equal(t, "2", formatSlots(2))
	assert.Equal(t, "0.5", formatSlots(0.5))
	assert.Equal(t, "2.1", formatSlots(2.1))
}

func TestReferralLink_WithoutAPI(t *testing.T) {
	bot, _, _ := newTestBot(t, engine.DefaultConfig())
	assert.Equal(t, "https://t.me/raidbot?start=100", bot.referralLink(100))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
