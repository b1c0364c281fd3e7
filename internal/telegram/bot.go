package telegram

import (
	"context"
	"fmt"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/internal/daemon"
	"github.com/harun/gofer/internal/logger"
	"github.com/rs/zerolog"
)

const messageChunkSize = 3500

// Bot is the Telegram transport. It owns no conversation logic: commands
// and messages are translated into daemon calls keyed by chat ID.
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	daemon *daemon.Daemon
	logger zerolog.Logger

	running atomic.Bool
	updates tgbotapi.UpdatesChannel
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, d *daemon.Daemon, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:    api,
		config: cfg,
		daemon: d,
		logger: log.GetZerolog().With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// Start starts the bot and begins processing updates
func (b *Bot) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.updates = b.api.GetUpdatesChan(u)

	go b.processUpdates(ctx)

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")

	b.api.StopReceivingUpdates()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

func (b *Bot) processUpdates(ctx context.Context) {
	for update := range b.updates {
		if !b.running.Load() {
			break
		}

		if err := b.handleUpdate(ctx, update); err != nil {
			b.logger.Error().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to handle update")
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || update.Message.Text == "" {
		return nil
	}

	chatID := update.Message.Chat.ID
	if !b.allowed(chatID) {
		b.logger.Warn().Int64("chat_id", chatID).Msg("Chat not in allowlist, ignoring")
		return nil
	}

	if update.Message.IsCommand() {
		return b.handleCommand(ctx, update)
	}

	reply, err := b.daemon.HandleMessage(ctx, sessionKey(chatID), update.Message.Text)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return err
	}

	b.reply(chatID, reply)
	return nil
}

func (b *Bot) allowed(chatID int64) bool {
	if len(b.config.Allowlist) == 0 {
		return true
	}
	for _, id := range b.config.Allowlist {
		if id == chatID {
			return true
		}
	}
	return false
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// reply sends text to a chat, chunked to stay under Telegram's message size
// limit.
func (b *Bot) reply(chatID int64, text string) {
	if text == "" {
		return
	}

	for _, chunk := range splitMessage(text, messageChunkSize) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error().
				Err(err).
				Int64("chat_id", chatID).
				Msg("Failed to send message")
			return
		}
	}
}

// splitMessage splits on rune boundaries so a multi-byte character is never
// torn across chunks; Telegram rejects invalid UTF-8.
func splitMessage(text string, chunkSize int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for len(runes) > chunkSize {
		chunks = append(chunks, string(runes[:chunkSize]))
		runes = runes[chunkSize:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
