package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"raidbot/internal/engine"
)

// NewBot creates a new Telegram bot
func NewBot(token string, eng *engine.Engine, adminIDs []int64, links Links, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	admins := make(map[int64]bool)
	for _, id := range adminIDs {
		admins[id] = true
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	return &Bot{
		api:           api,
		engine:        eng,
		admins:        admins,
		awaitingPost:  make(map[int64]bool),
		logger:        logger,
		channelURL:    links.ChannelURL,
		supportURL:    links.SupportURL,
		authServerURL: links.AuthServerURL,
	}, nil
}

// GetAPI returns the bot API for testing
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
