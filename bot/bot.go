package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"runway-bot/runway"
)

// Command names understood by the bot.
const (
	CommandRunwayImages = "get_runway_images"
	CommandRunwayStats  = "runway_stats"
)

// DefaultSeason is used when a command omits the season.
const DefaultSeason = 17

// Command is a parsed chat command.
type Command struct {
	Name   string
	Season int
}

// Runner checks a season for new images.
type Runner interface {
	Run(ctx context.Context, season int) runway.Result
}

// StatsProvider reports what is cached for a season.
type StatsProvider interface {
	Stats(ctx context.Context, season int) (Stats, error)
}

// Stats holds cached counts for a season.
type Stats struct {
	Images     int
	Categories int
	Queens     int
}

// CommandHandler maps commands to pipeline runs and reply text.
type CommandHandler struct {
	runner        Runner
	stats         StatsProvider
	defaultSeason int
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithDefaultSeason sets the season used when a command has none.
func WithDefaultSeason(season int) Option {
	return func(h *CommandHandler) {
		h.defaultSeason = season
	}
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(runner Runner, stats StatsProvider, opts ...Option) *CommandHandler {
	h := &CommandHandler{
		runner:        runner,
		stats:         stats,
		defaultSeason: DefaultSeason,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle executes cmd and returns the reply text. A zero season means the
// default season.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) string {
	season := cmd.Season
	if season == 0 {
		season = h.defaultSeason
	}
	if season < 1 {
		return usage()
	}

	switch cmd.Name {
	case CommandRunwayImages:
		res := h.runner.Run(ctx, season)
		if res.Err != nil {
			slog.Warn("runway command finished with error", "season", season, "status", res.Status.String(), "error", res.Err)
		}
		return res.Message()
	case CommandRunwayStats:
		return h.handleStats(ctx, season)
	default:
		return usage()
	}
}

func (h *CommandHandler) handleStats(ctx context.Context, season int) string {
	if h.stats == nil {
		return usage()
	}

	s, err := h.stats.Stats(ctx, season)
	if err != nil {
		slog.Warn("failed to get stats", "season", season, "error", err)
		return "Failed to retrieve stats."
	}

	if s.Images == 0 {
		return fmt.Sprintf("No runway images posted for Season %d yet.", season)
	}

	return fmt.Sprintf("📊 Season %d\n\n"+
		"Images posted: %d\n"+
		"Runway themes: %d\n"+
		"Queens: %d", season, s.Images, s.Categories, s.Queens)
}

// ParseCommand parses chat text such as "/get_runway_images 16" or
// "/runway_stats@RunwayBot". It reports false for text that is not a known
// command.
func ParseCommand(text string) (Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name != CommandRunwayImages && name != CommandRunwayStats {
		return Command{}, false
	}

	cmd := Command{Name: name}
	if len(fields) > 1 {
		season, err := strconv.Atoi(fields[1])
		if err != nil || season < 1 {
			// Handle answers invalid seasons with usage text.
			cmd.Season = -1
			return cmd, true
		}
		cmd.Season = season
	}
	return cmd, true
}

func usage() string {
	return "Usage:\n" +
		"/" + CommandRunwayImages + " [season] - Post new runway images\n" +
		"/" + CommandRunwayStats + " [season] - Show what has been posted"
}
