package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"raidbot/internal/auth"
	"raidbot/internal/bot"
	"raidbot/internal/config"
	"raidbot/internal/engine"
	"raidbot/internal/storage/pg"
	"raidbot/internal/twitter"
)

// App wires the bot, the economy engine, the sweeps, and the linking web
// service together.
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      *pg.DB
	engine  *engine.Engine
	bot     *bot.Bot
	sweeper *engine.Sweeper
	server  *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}
	logger.Info("Starting raid bot")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initBot(); err != nil {
		return nil, err
	}
	app.initHTTPServer()

	return app, nil
}

func (a *App) initDatabase() error {
	if a.config.UseMemoryDB {
		a.logger.Info("Using in-memory database")
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return fmt.Errorf("failed to open in-memory database: %w", err)
		}
		a.db = pg.NewWithDB(db)
		if err := a.db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate in-memory database: %w", err)
		}
		return nil
	}

	a.logger.Info("Connecting to PostgreSQL")
	db, err := pg.New(a.config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	return nil
}

func (a *App) initBot() error {
	links := bot.Links{
		ChannelURL:    a.config.ChannelURL,
		SupportURL:    a.config.SupportURL,
		AuthServerURL: a.config.AuthServerURL,
	}

	// The engine and bot reference each other (the bot is the engine's
	// notification layer), so the bot is built around a deferred notifier.
	verifier := twitter.NewClient()
	notifier := &deferredNotifier{}
	eng := engine.New(a.config.Engine, a.db, verifier, notifier, a.logger)

	telegramBot, err := bot.NewBot(a.config.TelegramToken, eng, a.config.AdminIDs, links, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	notifier.delegate = telegramBot

	sweeper, err := engine.NewSweeper(eng, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}

	a.engine = eng
	a.bot = telegramBot
	a.sweeper = sweeper
	a.logger.Info("Bot created", zap.Int64s("admins", a.config.AdminIDs))
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	if a.config.TwitterClientID != "" {
		oauthCfg := twitter.OAuthConfig(
			a.config.TwitterClientID,
			a.config.TwitterClientSecret,
			a.config.TwitterRedirectURL,
		)
		authServer := auth.NewServer(
			oauthCfg,
			twitter.NewClient(),
			a.engine,
			a.bot,
			a.config.SessionSigningSecret,
			a.logger,
		)
		mux.Handle("/twitter/", authServer.Routes())
	} else {
		a.logger.Warn("Twitter linking disabled: TWITTER_CLIENT_ID not set")
	}

	a.server = &http.Server{
		Addr:         a.config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.config.ListenAddr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeps: %w", err)
	}

	go func() {
		if err := a.bot.Start(); err != nil {
			a.logger.Fatal("Failed to start bot", zap.Error(err))
		}
	}()

	<-sigChan
	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	a.bot.Stop()

	if err := a.sweeper.Stop(); err != nil {
		a.logger.Error("Sweeper shutdown error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}
