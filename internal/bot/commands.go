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
	"raidbot/internal/storage"
)

// handleStart registers the user (optionally crediting a referrer passed as
// the /start argument) and shows the main menu.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	user := message.From

	var referredBy *int64
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
			referredBy = &id
		}
	}

	created, err := b.engine.Register(ctx, user.ID, fullName(user), referredBy)
	if err != nil {
		b.logger.Error("registration failed", zap.Int64("user_id", user.ID), zap.Error(err))
		b.reply(message.Chat.ID, "Something went wrong, please try again.")
		return
	}

	refLink := b.referralLink(user.ID)
	var welcome string
	if created {
		welcome = fmt.Sprintf(
			"Welcome %s!\n\n🎉 You've been registered with %s engagement slots.\n🔗 Share your referral link to earn more slots.\n\n%s",
			user.FirstName, formatSlots(b.engine.Config().StartingBalance), refLink)
	} else {
		welcome = fmt.Sprintf(
			"Welcome back, %s! 👋\n\nHere's your referral link again:\n%s",
			user.FirstName, refLink)
	}
	b.reply(message.Chat.ID, welcome)

	menu := tgbotapi.NewMessage(message.Chat.ID, "🔘 Choose an option:")
	menu.ReplyMarkup = b.mainKeyboard(user.ID)
	b.sendMessage(menu)
}

// handleRaids lists posts approved within the engagement window, each with a
// Done button. Users without a linked Twitter account are sent to the
// connect flow first.
func (b *Bot) handleRaids(ctx context.Context, message *tgbotapi.Message) {
	user := message.From

	account, err := b.engine.Account(ctx, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(message.Chat.ID, "❗ You need to start the bot with /start first.")
		return
	}
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}

	if b.engine.Config().VerifyMode == engine.VerifyAuto && account.TwitterAccessToken == "" {
		connectURL := fmt.Sprintf("%s/twitter/connect?tgid=%d", b.authServerURL, user.ID)
		msg := tgbotapi.NewMessage(message.Chat.ID, "🐦 Before you can join a raid, connect your Twitter account.")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🔗 Connect Twitter", connectURL),
			),
		)
		b.sendMessage(msg)
		return
	}

	raids, err := b.engine.ActiveRaids(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(raids) == 0 {
		b.reply(message.Chat.ID, "🚫 No active raids in the last 24 hours.")
		return
	}

	for _, raid := range raids {
		msg := tgbotapi.NewMessage(message.Chat.ID,
			fmt.Sprintf("🔥 New Raid by %s\n🔗 %s", raid.OwnerName, raid.Link))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Done", fmt.Sprintf("done|%d", raid.ID)),
			),
		)
		msg.DisableWebPagePreview = true
		b.sendMessage(msg)
	}
}

// handleSlots shows the user's current balance.
func (b *Bot) handleSlots(ctx context.Context, message *tgbotapi.Message) {
	account, err := b.engine.Account(ctx, message.From.ID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(message.Chat.ID, "❗ You need to start the bot with /start first.")
		return
	}
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	b.reply(message.Chat.ID, fmt.Sprintf(
		"🎯 Slot Info\n\nHi %s, you have %s engagement slot(s).\n\n📌 Earn more slots by participating in raids or referring others!",
		message.From.FirstName, formatSlots(account.Slots)))
}

// handlePostStart begins the submit-post conversation.
func (b *Bot) handlePostStart(message *tgbotapi.Message) {
	b.setAwaitingPost(message.From.ID, true)
	msg := tgbotapi.NewMessage(message.Chat.ID,
		"📤 Submit your post link for review:\n\nPaste the full link below. You will be notified when it is approved.")
	msg.ReplyMarkup = cancelKeyboard()
	b.sendMessage(msg)
}

// handlePostLink settles the awaited submission.
func (b *Bot) handlePostLink(ctx context.Context, message *tgbotapi.Message) {
	user := message.From
	link := strings.TrimSpace(message.Text)

	_, err := b.engine.Submit(ctx, user.ID, link)
	switch {
	case errors.Is(err, engine.ErrInvalidLink):
		// Leave the conversation open so the user can paste a corrected link.
		b.reply(message.Chat.ID, "❌ Invalid link. Please send a full tweet URL (x.com or twitter.com).")
		return
	case errors.Is(err, engine.ErrCooldown):
		b.setAwaitingPost(user.ID, false)
		b.reply(message.Chat.ID, "⏳ You can only submit one post every 12 hours. Please try again later.")
	case errors.Is(err, engine.ErrBanned):
		b.setAwaitingPost(user.ID, false)
		b.reply(message.Chat.ID, "⛔ You are temporarily banned from submitting posts.")
	case errors.Is(err, engine.ErrNotRegistered):
		b.setAwaitingPost(user.ID, false)
		b.reply(message.Chat.ID, "❗ You need to start the bot with /start first.")
	case err != nil:
		b.setAwaitingPost(user.ID, false)
		b.replyError(message.Chat.ID, err)
	default:
		b.setAwaitingPost(user.ID, false)
		msg := tgbotapi.NewMessage(message.Chat.ID,
			"✅ Your post has been submitted for review.\nYou'll be notified once it's approved. 🤝")
		msg.ReplyMarkup = b.mainKeyboard(user.ID)
		b.sendMessage(msg)
	}
}

// handleInvite renders the referral link and count.
func (b *Bot) handleInvite(ctx context.Context, message *tgbotapi.Message) {
	user := message.From
	account, err := b.engine.Account(ctx, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(message.Chat.ID, "❗ You need to start the bot with /start first.")
		return
	}
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	b.reply(message.Chat.ID, fmt.Sprintf(
		"📨 Referral Program\n\n🎯 Invite others and earn %s engagement slot per referral!\n\n🔗 Your referral link:\n%s\n\n📊 Total Referrals: %d",
		formatSlots(b.engine.Config().ReferralBonus), b.referralLink(user.ID), account.ReferralCount))
}

func (b *Bot) handleSupport(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID, "🎧 Need help with the Bot?\n\nTap the button below to chat with us:")
	if b.supportURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("Contact Us", b.supportURL),
			),
		)
	}
	b.sendMessage(msg)
}

func (b *Bot) handleContacts(message *tgbotapi.Message) {
	text := "📩 Contact Us:\n"
	if b.channelURL != "" {
		text += "\n📣 Channel: " + b.channelURL
	}
	if b.supportURL != "" {
		text += "\n📱 Telegram: " + b.supportURL
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.DisableWebPagePreview = true
	b.sendMessage(msg)
}

// handleProfile shows post counts, ledger-derived earnings, and the linked
// Twitter handle.
func (b *Bot) handleProfile(ctx context.Context, message *tgbotapi.Message) {
	user := message.From
	account, err := b.engine.Account(ctx, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(message.Chat.ID, "❗ You need to start the bot with /start first.")
		return
	}
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}

	stats, err := b.engine.Stats(ctx, user.ID)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}

	handle := account.TwitterHandle
	if handle == "" {
		handle = "Not set"
	} else {
		handle = "@" + handle
	}

	b.reply(message.Chat.ID, fmt.Sprintf(
		"👤 Your Profile\n\n🐦 Twitter: %s\n\n✅ Approved Posts: %d\n❌ Rejected Posts: %d\n\n💰 Slot Earnings:\n🪙 From Raids: %s\n👥 From Referrals: %s",
		handle, stats.ApprovedPosts, stats.RejectedPosts,
		formatSlots(stats.TaskSlots), formatSlots(stats.ReferralSlots)))
}

// handleReview sends each pending post to the admin with approve/reject buttons.
func (b *Bot) handleReview(ctx context.Context, message *tgbotapi.Message) {
	if !b.admins[message.From.ID] {
		b.reply(message.Chat.ID, "⛔ You're not authorized.")
		return
	}

	posts, err := b.engine.PendingPosts(ctx, 5)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(posts) == 0 {
		b.reply(message.Chat.ID, "✅ No pending posts.")
		return
	}

	for _, post := range posts {
		msg := tgbotapi.NewMessage(message.Chat.ID,
			fmt.Sprintf("👤 %s\n🔗 %s", post.OwnerName, post.Link))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Approve", fmt.Sprintf("approve|%d", post.ID)),
				tgbotapi.NewInlineKeyboardButtonData("❌ Reject", fmt.Sprintf("reject|%d", post.ID)),
			),
		)
		b.sendMessage(msg)
	}
}

func (b *Bot) referralLink(userID int64) string {
	username := "raidbot"
	if b.api != nil {
		username = b.api.Self.UserName
	}
	return fmt.Sprintf("https://t.me/%s?start=%d", username, userID)
}

func fullName(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}

// formatSlots renders a fractional slot balance without trailing zeros.
func formatSlots(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
