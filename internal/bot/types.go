package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"raidbot/internal/engine"
)

// Bot wraps the Telegram API around the raid economy engine.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *engine.Engine
	admins map[int64]bool

	// awaitingPost tracks users mid-way through the submit-post flow.
	awaitingPost map[int64]bool
	mu           sync.RWMutex

	logger *zap.Logger

	channelURL    string
	supportURL    string
	authServerURL string
}

// Links are the presentation URLs rendered into menus.
type Links struct {
	ChannelURL    string
	SupportURL    string
	AuthServerURL string
}
