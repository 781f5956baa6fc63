package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"runway-bot/bot"
)

const (
	defaultPollTimeout    = 30
	defaultCommandTimeout = 5 * time.Minute
)

// CommandRunner executes a parsed command and returns the reply text.
type CommandRunner interface {
	Handle(ctx context.Context, cmd bot.Command) string
}

// BotAPI is the part of tgbotapi.BotAPI the poller uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Poller long-polls Telegram for commands and answers them in chat.
type Poller struct {
	api            BotAPI
	commands       CommandRunner
	allowedChat    int64
	pollTimeout    int
	commandTimeout time.Duration
	wg             sync.WaitGroup
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithAllowedChat ignores commands from every chat except chatID.
func WithAllowedChat(chatID int64) PollerOption {
	return func(p *Poller) {
		p.allowedChat = chatID
	}
}

// WithCommandTimeout bounds how long one command may run.
func WithCommandTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.commandTimeout = d
	}
}

// NewPoller creates a poller that dispatches commands to commands.
func NewPoller(api BotAPI, commands CommandRunner, opts ...PollerOption) *Poller {
	p := &Poller{
		api:            api,
		commands:       commands,
		pollTimeout:    defaultPollTimeout,
		commandTimeout: defaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled, then waits for running commands.
func (p *Poller) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.pollTimeout
	u.AllowedUpdates = []string{"message"}

	updates := p.api.GetUpdatesChan(u)
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			p.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches a command message on its own goroutine.
func (p *Poller) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	if p.allowedChat != 0 && msg.Chat.ID != p.allowedChat {
		slog.Debug("ignoring message from other chat", "chat_id", msg.Chat.ID)
		return
	}

	cmd, ok := bot.ParseCommand(msg.Text)
	if !ok {
		return
	}

	slog.Info("received command", "command", cmd.Name, "season", cmd.Season, "chat_id", msg.Chat.ID)

	chatID := msg.Chat.ID
	replyTo := msg.MessageID

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Let a run that already started finish its fan-out during shutdown.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.commandTimeout)
		defer cancel()

		reply := p.commands.Handle(runCtx, cmd)

		out := tgbotapi.NewMessage(chatID, reply)
		out.ReplyToMessageID = replyTo
		if _, err := p.api.Send(out); err != nil {
			slog.Warn("failed to send reply", "chat_id", chatID, "error", err)
		}
	}()
}

// Wait blocks until dispatched commands have finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}
