package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"runway-bot/bot"
	"runway-bot/config"
	"runway-bot/discord"
	"runway-bot/runway"
	"runway-bot/storage"
	"runway-bot/telegram"
	"runway-bot/wiki"
)

func main() {
	// Set up structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting runway bot")

	// Load configuration
	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		slog.Warn("invalid log level, using info", "log_level", cfg.LogLevel)
	}
	slog.Info("config loaded", "path", configPath, "platform", cfg.Platform)

	// Initialize database
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database initialized", "path", cfg.DBPath)

	// Set up context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := seedQueens(ctx, db, cfg.Queens); err != nil {
		slog.Error("failed to seed queens", "error", err)
		os.Exit(1)
	}

	wikiClient := wiki.NewClient(
		wiki.WithBaseURL(cfg.WikiAPIURL),
		wiki.WithUserAgent(cfg.WikiUserAgent),
		wiki.WithTimeout(time.Duration(cfg.FetchTimeoutSecs)*time.Second),
		wiki.WithRateLimit(cfg.WikiRateLimit, max(1, int(cfg.WikiRateLimit))),
	)

	leaseTTL := time.Duration(cfg.LeaseTTLSecs) * time.Second
	runnerOpts := []runway.Option{
		runway.WithPageTemplate(cfg.WikiPageTemplate),
		runway.WithResolveWorkers(cfg.ResolveWorkers),
		runway.WithLocker(runway.NewLeaseLocker(db, leaseTTL)),
		// A run must end before its lease can expire under it.
		runway.WithRunTimeout(leaseTTL),
	}

	switch cfg.Platform {
	case config.PlatformDiscord:
		err = runDiscord(ctx, cfg, db, wikiClient, runnerOpts)
	case config.PlatformTelegram:
		err = runTelegram(ctx, cfg, db, wikiClient, runnerOpts)
	}
	if err != nil {
		slog.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("bot stopped")
}

func runDiscord(ctx context.Context, cfg *config.Config, db *storage.DB, source runway.Source, runnerOpts []runway.Option) error {
	publicKey, err := discord.ParsePublicKey(cfg.DiscordPublicKey)
	if err != nil {
		return err
	}

	client := discord.NewClient(cfg.DiscordToken, cfg.DiscordChannelID,
		discord.WithTimeout(time.Duration(cfg.FetchTimeoutSecs)*time.Second),
	)

	if cfg.RegisterCommands {
		if err := client.RegisterCommands(ctx, cfg.DiscordAppID, cfg.DiscordGuildID); err != nil {
			return err
		}
		slog.Info("slash commands registered", "app_id", cfg.DiscordAppID, "guild_id", cfg.DiscordGuildID)
	}

	runner := runway.NewRunner(source, &storageAdapter{db}, client, runnerOpts...)
	commands := bot.NewCommandHandler(runner, &statsAdapter{db}, bot.WithDefaultSeason(cfg.DefaultSeason))

	var handlerOpts []discord.HandlerOption
	if cfg.Deferred() {
		handlerOpts = append(handlerOpts, discord.WithDeferredResponses(client, cfg.DiscordAppID))
	}
	interactions := discord.NewInteractionHandler(publicKey, commands, handlerOpts...)

	mux := http.NewServeMux()
	mux.Handle("/interactions", interactions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening for interactions", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
	interactions.Wait()
	return nil
}

func runTelegram(ctx context.Context, cfg *config.Config, db *storage.DB, source runway.Source, runnerOpts []runway.Option) error {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return err
	}
	slog.Info("telegram bot initialized", "username", api.Self.UserName)

	client := telegram.NewClient(api, cfg.TelegramChatID)
	runner := runway.NewRunner(source, &storageAdapter{db}, client, runnerOpts...)
	commands := bot.NewCommandHandler(runner, &statsAdapter{db}, bot.WithDefaultSeason(cfg.DefaultSeason))

	poller := telegram.NewPoller(api, commands, telegram.WithAllowedChat(cfg.TelegramChatID))

	slog.Info("starting bot polling")
	poller.Run(ctx)
	return nil
}

func seedQueens(ctx context.Context, db *storage.DB, queens map[int][]string) error {
	for season, names := range queens {
		if err := db.AddQueens(ctx, season, names...); err != nil {
			return err
		}
		slog.Info("seeded queens", "season", season, "count", len(names))
	}
	return nil
}

// Adapter types to bridge between storage and the runway and bot interfaces

type storageAdapter struct {
	db *storage.DB
}

func (s *storageAdapter) CachedURLs(ctx context.Context, season int) (map[string]struct{}, error) {
	return s.db.CachedURLs(ctx, season)
}

func (s *storageAdapter) KnownNames(ctx context.Context, season int) ([]string, error) {
	return s.db.KnownNames(ctx, season)
}

func (s *storageAdapter) InsertImages(ctx context.Context, records []runway.Record) error {
	rows := make([]storage.ImageRecord, len(records))
	for i, r := range records {
		rows[i] = storage.ImageRecord{
			Season:   r.Season,
			URL:      r.URL,
			Queen:    r.Queen,
			Category: r.Category,
			PostedAt: r.PostedAt,
		}
	}
	return s.db.InsertImages(ctx, rows)
}

type statsAdapter struct {
	db *storage.DB
}

func (s *statsAdapter) Stats(ctx context.Context, season int) (bot.Stats, error) {
	st, err := s.db.Stats(ctx, season)
	if err != nil {
		return bot.Stats{}, err
	}
	return bot.Stats{
		Images:     st.Images,
		Categories: st.Categories,
		Queens:     st.Queens,
	}, nil
}
