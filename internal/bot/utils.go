package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// sendMessage delivers a message, logging delivery failures. The nil-api
// guard keeps handler tests runnable without a live Telegram connection.
func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Int64("chat_id", msg.ChatID),
			zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyError(chatID int64, err error) {
	b.logger.Error("request failed", zap.Int64("chat_id", chatID), zap.Error(err))
	b.reply(chatID, "❌ Something went wrong. Please try again.")
}

func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	if b.api == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("Failed to edit message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}
