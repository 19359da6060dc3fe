// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/api/dashboard"
	"github.com/quaverbot/quaver/internal/app/filter"
	"github.com/quaverbot/quaver/internal/app/status"
	"github.com/quaverbot/quaver/internal/app/voice"
	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/infra/config"
	"github.com/quaverbot/quaver/internal/infra/discord"
	"github.com/quaverbot/quaver/internal/infra/history"
	"github.com/quaverbot/quaver/internal/infra/logger"
	"github.com/quaverbot/quaver/internal/infra/media"
)

var (
	app        = kingpin.New("quaver", "Quaver music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/quaver.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Command-line flags win over the config file's log settings.
	if !*verbose {
		loggerConfig.Level = cfg.Log.Level
	}
	if *logfile == "" {
		loggerConfig.Output = cfg.Log.Output
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	resolver, err := media.NewResolverChainFromConfig(cfg.Resolvers)
	if err != nil {
		return fmt.Errorf("failed to create resolver chain: %w", err)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer store.Close()
		zlog.Info().Msgf("Play history stored at %s", cfg.History.Path)
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	manager := voice.NewManager(voice.Deps{
		Transport: discord.NewTransport(session),
		Resolver:  resolver,
		Messages:  discord.NewSink(session),
		Renderer:  status.New(),
		OnTrackStarted: func(guildID string, t track.Track) {
			if store == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Record(ctx, guildID, t); err != nil {
				zlog.Warn().Err(err).Msg("Failed to record play history")
			}
		},
	})

	filters := filter.NewChain()
	queueView := discord.NewQueueView(manager)
	filters.Add(filter.NewQueueLimitFilter(queueView, cfg.Limits.MaxQueueLength))
	if cfg.Limits.RejectDuplicate {
		filters.Add(filter.NewDuplicateTrackFilter(queueView))
	}

	bot := discord.NewBot(session, manager, resolver, filters, cfg.Discord, cfg.Messages)
	bot.Register()

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to connect to Discord: %w", err)
	}
	defer session.Close()
	zlog.Info().Msg("Connected to Discord gateway")

	// Channel to capture dashboard startup errors
	serverErrCh := make(chan error, 1)

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.New(cfg.Dashboard.Addr, manager, store)
		go func() {
			if err := dash.Start(); err != nil {
				serverErrCh <- err
			}
		}()
	}

	// Wait for shutdown signal or dashboard error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("dashboard error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	manager.Shutdown(shutdownCtx)
	if dash != nil {
		if err := dash.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown dashboard: %v", err)
		}
	}

	zlog.Info().Msg("Bot stopped")
	return nil
}
