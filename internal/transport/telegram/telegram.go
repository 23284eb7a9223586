// Package telegram implements the transport on the Telegram Bot API via telego.
package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/teleecho/internal/transport"
)

const (
	// maxMessageLen is the safe per-message limit. Telegram's hard limit
	// is 4096 chars, 4000 leaves a margin.
	maxMessageLen = 4000

	// pollTimeout is the long-poll window for GetUpdates, in seconds.
	pollTimeout = 1
)

// Transport is a transport.Transport backed by one Telegram bot.
type Transport struct {
	bot     *telego.Bot
	offset  int
	pending []transport.Incoming
}

// New creates a transport for the given bot token. The token is not
// validated here; use BotName for a preflight check.
func New(token string) (*Transport, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Transport{bot: bot}, nil
}

// BotName returns the bot's username, validating the token in the process.
func (t *Transport) BotName(ctx context.Context) (string, error) {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot identity: %w", err)
	}
	return me.Username, nil
}

// Send delivers text to the chat, splitting it into sequential messages
// when it exceeds the Telegram length limit.
func (t *Transport) Send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// Poll returns the next incoming text message, or nil when the poll window
// passes quietly. Non-text updates are skipped. The update offset advances
// past everything fetched; extra messages are buffered for later calls.
func (t *Transport) Poll(ctx context.Context) (*transport.Incoming, error) {
	if len(t.pending) > 0 {
		msg := t.pending[0]
		t.pending = t.pending[1:]
		return &msg, nil
	}

	updates, err := t.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:  t.offset,
		Timeout: pollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	for _, u := range updates {
		if u.UpdateID >= t.offset {
			t.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		sender := ""
		if u.Message.From != nil {
			sender = u.Message.From.FirstName
		}
		t.pending = append(t.pending, transport.Incoming{
			ChatID: u.Message.Chat.ID,
			Sender: sender,
			Text:   u.Message.Text,
		})
	}

	if len(t.pending) == 0 {
		return nil, nil
	}
	msg := t.pending[0]
	t.pending = t.pending[1:]
	return &msg, nil
}

// splitMessage splits text into chunks of at most limit runes, preferring
// newline boundaries so multi-line batches stay readable.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		if len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
