package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/betawatch/betawatch"
)

// TelegramOptions configures a [Telegram] notifier.
type TelegramOptions struct {
	// BotToken is the Telegram Bot API token. Required.
	BotToken string

	// ChatID is the destination chat. Numeric IDs and @channel names are
	// both accepted. Required.
	ChatID string

	// APIBase overrides the Telegram API server URL. Empty uses the
	// public API. Intended for testing.
	APIBase string
}

// Telegram delivers availability alerts to a Telegram chat.
//
// Telegram implements [betawatch.Notifier] and [betawatch.Heartbeater]:
// open-transition alerts carry the beta's join link, and heartbeats send a
// short liveness message when the watcher is configured with
// [betawatch.WithHeartbeat].
//
// Construct with [NewTelegram]. Safe for concurrent use.
type Telegram struct {
	client *tgbot.Bot
	chatID any
}

// NewTelegram creates a Telegram notifier.
//
// Returns an error when the token or chat ID is missing, or when the bot
// client cannot be constructed. No network call is made; an invalid token
// surfaces on the first send.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if strings.TrimSpace(opts.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if strings.TrimSpace(opts.ChatID) == "" {
		return nil, errors.New("telegram chat_id is required")
	}

	botOptions := []tgbot.Option{
		tgbot.WithSkipGetMe(),
	}
	if opts.APIBase != "" {
		botOptions = append(botOptions, tgbot.WithServerURL(strings.TrimRight(opts.APIBase, "/")))
	}

	client, err := tgbot.New(opts.BotToken, botOptions...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	return &Telegram{
		client: client,
		chatID: normalizeChatID(opts.ChatID),
	}, nil
}

// Notify sends an open-beta alert with the join link.
func (t *Telegram) Notify(ctx context.Context, record betawatch.StatusRecord) error {
	name := record.DisplayName
	if name == "" {
		name = record.Key
	}
	text := fmt.Sprintf("<b>%s</b> beta is open!\nhttps://testflight.apple.com/join/%s",
		html.EscapeString(name), record.Key)

	return t.send(ctx, text)
}

// Heartbeat sends a short liveness message.
func (t *Telegram) Heartbeat(ctx context.Context) error {
	return t.send(ctx, "betawatch is alive")
}

func (t *Telegram) send(ctx context.Context, text string) error {
	sent, err := t.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps channel
// names as strings, matching the Bot API's chat id union.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
