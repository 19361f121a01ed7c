package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	if message.IsCommand() {
		// Any command interrupts an in-flight post submission.
		b.setAwaitingPost(userID, false)
		switch message.Command() {
		case "start":
			b.handleStart(ctx, message)
		case "post":
			b.handlePostStart(message)
		case "slots":
			b.handleSlots(ctx, message)
		case "profile":
			b.handleProfile(ctx, message)
		case "referrals":
			b.handleInvite(ctx, message)
		case "review":
			b.handleReview(ctx, message)
		case "export":
			b.handleExport(ctx, message)
		default:
			b.reply(message.Chat.ID, "Unknown command. Use /start to see available options.")
		}
		return
	}

	switch message.Text {
	case btnRaids:
		b.handleRaids(ctx, message)
	case btnSlots:
		b.handleSlots(ctx, message)
	case btnPost:
		b.handlePostStart(message)
	case btnInvite:
		b.handleInvite(ctx, message)
	case btnSupport:
		b.handleSupport(message)
	case btnContacts:
		b.handleContacts(message)
	case btnProfile:
		b.handleProfile(ctx, message)
	case btnReview:
		b.handleReview(ctx, message)
	case btnCancel:
		b.setAwaitingPost(userID, false)
		msg := tgbotapi.NewMessage(message.Chat.ID, "Back to main menu.")
		msg.ReplyMarkup = b.mainKeyboard(userID)
		b.sendMessage(msg)
	default:
		if b.isAwaitingPost(userID) {
			b.handlePostLink(ctx, message)
			return
		}
		msg := tgbotapi.NewMessage(message.Chat.ID, "❓ I didn't understand that. Choose an option:")
		msg.ReplyMarkup = b.mainKeyboard(userID)
		b.sendMessage(msg)
	}
}

func (b *Bot) setAwaitingPost(userID int64, awaiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if awaiting {
		b.awaitingPost[userID] = true
	} else {
		delete(b.awaitingPost, userID)
	}
}

func (b *Bot) isAwaitingPost(userID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.awaitingPost[userID]
}
