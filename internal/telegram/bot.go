// Package telegram exposes the assistant over a Telegram bot. Inbound
// chat messages become user input; assistant responses are pushed back
// to the chat they came from, unsolicited reports to the configured
// main chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mtzanidakis/agency/internal/assistant"
	"github.com/mtzanidakis/agency/internal/config"
)

type Bot struct {
	bot       *telego.Bot
	handler   *th.BotHandler
	assistant *assistant.Assistant
	cfg       config.TelegramConfig
	cancel    context.CancelFunc
}

func NewBot(cfg config.TelegramConfig, a *assistant.Assistant) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b := &Bot{
		bot:       bot,
		assistant: a,
		cfg:       cfg,
	}

	// Unsolicited assistant output (progress, completions, blockers)
	// goes to the main chat.
	a.SetResponseCallback(func(resp assistant.UserResponse) {
		if cfg.ChatID == 0 {
			slog.Warn("no main chat configured, dropping report", "type", resp.Type)
			return
		}
		if err := b.SendMessage(context.Background(), cfg.ChatID, resp.Text); err != nil {
			slog.Error("failed to send telegram report", "chat", cfg.ChatID, "error", err)
		}
	})

	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		b.handleMessage(ctx, message)
		return nil
	})

	go handler.Start()

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.allowed(userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return
	}

	text := msg.Text
	if text == "" {
		if msg.Caption != "" {
			text = msg.Caption
		} else {
			return
		}
	}

	_ = b.sendChatAction(ctx, chatID, "typing")

	resp := b.assistant.ReceiveUserInput(ctx, assistant.UserInput{
		Text:    text,
		Channel: "telegram",
		UserID:  fmt.Sprintf("%d", userID),
	})

	if err := b.SendMessage(ctx, chatID, resp.Text); err != nil {
		slog.Error("failed to send telegram reply", "chat", chatID, "error", err)
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.AllowFrom) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkMessage(text, 4096) {
		msg := tu.Message(tu.ID(chatID), chunk)
		if _, err := b.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}
