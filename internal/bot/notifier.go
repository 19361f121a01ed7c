package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// The bot is the engine's notification layer. Everything here is
// best-effort: sendMessage logs failures, and a failed delivery never
// reaches the engine.

func (b *Bot) PostSubmitted(_ context.Context, ownerName string) {
	for adminID := range b.admins {
		b.reply(adminID, fmt.Sprintf("📬 New post submitted by %s.", ownerName))
	}
}

func (b *Bot) PostApproved(_ context.Context, ownerID int64) {
	b.reply(ownerID, "✅ Your post has been approved for raiding! 🚀")
}

func (b *Bot) PostRejected(_ context.Context, ownerID int64, reason string) {
	b.reply(ownerID, fmt.Sprintf("❌ Your post has been rejected (%s).", reason))
}

func (b *Bot) ReferralCredited(_ context.Context, referrerID int64, amount float64) {
	b.reply(referrerID, fmt.Sprintf("👥 A friend joined through your link! You earned %s slots.", formatSlots(amount)))
}

func (b *Bot) CompletionRewarded(_ context.Context, participantID int64, amount float64) {
	b.reply(participantID, fmt.Sprintf("🪙 Raid confirmed! You've earned %s slots.", formatSlots(amount)))
}

func (b *Bot) VerificationRequested(_ context.Context, ownerID, postID, participantID int64, participantName, link string) {
	msg := tgbotapi.NewMessage(ownerID,
		fmt.Sprintf("🙋 %s says they raided your post:\n🔗 %s\n\nDid they?", participantName, link))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", fmt.Sprintf("confirm|%d|%d", postID, participantID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Deny", fmt.Sprintf("deny|%d|%d", postID, participantID)),
		),
	)
	msg.DisableWebPagePreview = true
	b.sendMessage(msg)
}

func (b *Bot) TwitterLinked(_ context.Context, telegramID int64, handle string) {
	b.reply(telegramID, fmt.Sprintf("✅ Twitter account @%s connected successfully!", handle))
}

func (b *Bot) OwnerSanctioned(_ context.Context, ownerID int64, until time.Time) {
	b.reply(ownerID, fmt.Sprintf(
		"⛔ You didn't respond to raid confirmations on your expired post. Posting is blocked until %s.",
		until.Format("2006-01-02 15:04 MST")))
}
