package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/gofer/pkg/session"
)

const startText = `OK. Default mode: plain LLM chat.

AGENT MODE:
- /agent => switch to agent mode
- /llm => switch back to plain LLM chat
- /mode shows the current mode
- /engine [direct|team] shows/sets the planning engine
- /run {"tool":"name","input":{...}} runs a registry tool directly
- /tools lists the registered tools
- /reset clears the session`

// handleCommand dispatches one bot command.
func (b *Bot) handleCommand(ctx context.Context, update tgbotapi.Update) error {
	chatID := update.Message.Chat.ID
	key := sessionKey(chatID)
	args := strings.TrimSpace(update.Message.CommandArguments())

	switch update.Message.Command() {
	case "start":
		b.reply(chatID, startText)

	case "mode":
		sess, err := b.daemon.Sessions().GetOrCreate(key)
		if err != nil {
			return err
		}
		b.reply(chatID, fmt.Sprintf("Mode: %s\nEngine: %s", sess.Mode, b.daemon.EngineFor(key)))

	case "agent":
		if err := b.setMode(key, session.ModeAgent); err != nil {
			return err
		}
		b.reply(chatID, fmt.Sprintf("Agent mode activated. Engine: %s", b.daemon.EngineFor(key)))

	case "llm":
		if err := b.setMode(key, session.ModeLLM); err != nil {
			return err
		}
		b.reply(chatID, "LLM mode activated.")

	case "engine":
		b.handleEngine(chatID, key, args)

	case "tools":
		b.reply(chatID, b.daemon.FormatToolList())

	case "run":
		b.handleRun(ctx, chatID, key, args)

	case "reset":
		if err := b.daemon.Sessions().Reset(key); err != nil {
			return err
		}
		b.reply(chatID, "Session reset.")

	default:
		b.reply(chatID, "Unknown command. Try /start.")
	}

	return nil
}

func (b *Bot) setMode(key string, mode session.Mode) error {
	if _, err := b.daemon.Sessions().GetOrCreate(key); err != nil {
		return err
	}
	return b.daemon.Sessions().SetMode(key, mode)
}

func (b *Bot) handleEngine(chatID int64, key, args string) {
	if args == "" {
		b.reply(chatID, fmt.Sprintf(
			"Engine: %s\nAvailable: %s",
			b.daemon.EngineFor(key),
			strings.Join(b.daemon.EngineKinds(), ", "),
		))
		return
	}

	kind := strings.ToLower(args)
	if err := b.daemon.SetEngine(key, kind); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid engine. Available: %s", strings.Join(b.daemon.EngineKinds(), ", ")))
		return
	}

	b.reply(chatID, fmt.Sprintf("Engine set to: %s", kind))
}

// handleRun parses /run {"tool":"name","input":{...}} and invokes the tool
// directly, bypassing planning.
func (b *Bot) handleRun(ctx context.Context, chatID int64, key, args string) {
	if args == "" {
		b.reply(chatID, `Usage: /run {"tool":"tool_name","input":{...}}`)
		return
	}

	var payload struct {
		Tool  string                 `json:"tool"`
		Input map[string]interface{} `json:"input"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if payload.Tool == "" {
		b.reply(chatID, "Missing tool name.")
		return
	}

	b.reply(chatID, "Running tool...")

	reply, err := b.daemon.RunDirect(ctx, key, payload.Tool, payload.Input)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, reply)
}
