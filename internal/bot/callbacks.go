package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"raidbot/internal/engine"
	"raidbot/internal/models"
	"raidbot/internal/storage"
)

// handleCallbackQuery processes inline keyboard button clicks. Callback data
// is an action tag plus arguments joined with "|".
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()

	// Answer the callback query to remove the loading state.
	if b.api != nil {
		b.api.Request(tgbotapi.NewCallback(query.ID, ""))
	}

	parts := strings.Split(query.Data, "|")
	switch parts[0] {
	case "approve", "reject":
		b.handleReviewCallback(ctx, query, parts)
	case "done":
		b.handleDoneCallback(ctx, query, parts)
	case "confirm", "deny":
		b.handleVerificationCallback(ctx, query, parts)
	}
}

// handleReviewCallback settles an admin approve/reject decision.
func (b *Bot) handleReviewCallback(ctx context.Context, query *tgbotapi.CallbackQuery, parts []string) {
	if !b.admins[query.From.ID] {
		return
	}
	postID, ok := parseID(parts, 1)
	if !ok {
		return
	}
	chatID := query.Message.Chat.ID

	if parts[0] == "reject" {
		err := b.engine.Reject(ctx, postID)
		switch {
		case errors.Is(err, storage.ErrNotPending):
			b.editMessage(chatID, query.Message.MessageID, "⚠️ Post was already reviewed.")
		case err != nil:
			b.logger.Error("reject failed", zap.Int64("post_id", postID), zap.Error(err))
			b.editMessage(chatID, query.Message.MessageID, "❌ Failed to reject post.")
		default:
			b.editMessage(chatID, query.Message.MessageID, "❌ Post rejected.")
		}
		return
	}

	status, err := b.engine.Approve(ctx, postID)
	switch {
	case errors.Is(err, storage.ErrNotPending):
		b.editMessage(chatID, query.Message.MessageID, "⚠️ Post was already reviewed.")
	case err != nil:
		b.logger.Error("approve failed", zap.Int64("post_id", postID), zap.Error(err))
		b.editMessage(chatID, query.Message.MessageID, "❌ Failed to approve post.")
	case status == models.PostApproved:
		b.editMessage(chatID, query.Message.MessageID, "✅ Post approved and 1 slot deducted.")
	default:
		b.editMessage(chatID, query.Message.MessageID, "❌ Rejected: user has no available slots.")
	}
}

// handleDoneCallback settles a participant's completion claim.
func (b *Bot) handleDoneCallback(ctx context.Context, query *tgbotapi.CallbackQuery, parts []string) {
	postID, ok := parseID(parts, 1)
	if !ok {
		return
	}
	chatID := query.Message.Chat.ID

	result, err := b.engine.Complete(ctx, query.From.ID, postID)
	switch {
	case errors.Is(err, engine.ErrSelfCompletion):
		b.reply(chatID, "🚫 You can't complete your own raid.")
	case errors.Is(err, engine.ErrAlreadyCompleted):
		b.reply(chatID, "✅ You've already completed this task.")
	case errors.Is(err, engine.ErrNotLinked):
		b.reply(chatID, "❌ You must log in with Twitter before participating.")
	case errors.Is(err, engine.ErrNotLiked):
		b.reply(chatID, "❌ We couldn't verify your like. Please try again after liking the tweet.")
	case errors.Is(err, engine.ErrPostNotActive):
		b.reply(chatID, "🚫 This raid is no longer active.")
	case errors.Is(err, engine.ErrNotRegistered):
		b.reply(chatID, "❗ You need to start the bot with /start first.")
	case err != nil:
		b.logger.Error("completion failed",
			zap.Int64("user_id", query.From.ID),
			zap.Int64("post_id", postID),
			zap.Error(err))
		b.reply(chatID, "❌ Something went wrong verifying your task. Please try again.")
	case result.Rewarded:
		b.reply(chatID, fmt.Sprintf("✅ Task verified! You've earned %s slots.", formatSlots(result.Amount)))
	default:
		b.reply(chatID, "📨 Your claim was sent to the post owner for confirmation.")
	}
}

// handleVerificationCallback settles a post owner's confirm/deny decision on
// a manual completion claim.
func (b *Bot) handleVerificationCallback(ctx context.Context, query *tgbotapi.CallbackQuery, parts []string) {
	postID, ok := parseID(parts, 1)
	if !ok {
		return
	}
	participantID, ok := parseID(parts, 2)
	if !ok {
		return
	}
	chatID := query.Message.Chat.ID

	var err error
	if parts[0] == "confirm" {
		err = b.engine.ConfirmCompletion(ctx, query.From.ID, postID, participantID)
	} else {
		err = b.engine.RejectCompletion(ctx, query.From.ID, postID, participantID)
	}

	switch {
	case errors.Is(err, engine.ErrNotOwner):
		b.reply(chatID, "⛔ Only the post owner can resolve this claim.")
	case errors.Is(err, engine.ErrAlreadyResolved):
		b.editMessage(chatID, query.Message.MessageID, "⚠️ This claim was already resolved.")
	case err != nil:
		b.logger.Error("verification resolution failed",
			zap.Int64("post_id", postID),
			zap.Int64("participant_id", participantID),
			zap.Error(err))
		b.reply(chatID, "❌ Failed to resolve the claim. Please try again.")
	case parts[0] == "confirm":
		b.editMessage(chatID, query.Message.MessageID, "✅ Claim confirmed, reward credited.")
	default:
		b.editMessage(chatID, query.Message.MessageID, "❌ Claim rejected, no reward.")
	}
}

func parseID(parts []string, index int) (int64, bool) {
	if index >= len(parts) {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[index], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
