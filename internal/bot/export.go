package bot

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleExport renders every account with its balances, ledger-derived
// subtotals, and post counts as a CSV document.
func (b *Bot) handleExport(ctx context.Context, message *tgbotapi.Message) {
	if !b.admins[message.From.ID] {
		b.reply(message.Chat.ID, "⛔ You're not authorized.")
		return
	}

	data, err := b.buildExport(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}

	if b.api == nil {
		return
	}
	doc := tgbotapi.NewDocument(message.Chat.ID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("raid-stats-%s.csv", time.Now().UTC().Format("2006-01-02")),
		Bytes: data,
	})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("Failed to send export", zap.Error(err))
	}
}

func (b *Bot) buildExport(ctx context.Context) ([]byte, error) {
	accounts, err := b.engine.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"telegram_id", "name", "twitter_handle", "slots",
		"task_slots", "referral_slots", "referral_count",
		"approved_posts", "rejected_posts",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, account := range accounts {
		stats, err := b.engine.Stats(ctx, account.TelegramID)
		if err != nil {
			return nil, err
		}
		row := []string{
			strconv.FormatInt(account.TelegramID, 10),
			account.Name,
			account.TwitterHandle,
			formatSlots(account.Slots),
			formatSlots(stats.TaskSlots),
			formatSlots(stats.ReferralSlots),
			strconv.Itoa(account.ReferralCount),
			strconv.FormatInt(stats.ApprovedPosts, 10),
			strconv.FormatInt(stats.RejectedPosts, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
