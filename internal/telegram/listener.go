// Package telegram feeds channel posts from the Bot API into the ingest
// dispatcher.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"signal-tracker/internal/ingest"
)

// Handler consumes inbound messages
type Handler interface {
	Handle(ctx context.Context, msg ingest.Message) ingest.Result
}

// Listener long-polls the Bot API for channel and group posts
type Listener struct {
	bot     *tgbot.BotAPI
	handler Handler
	allowed map[int64]bool
}

// NewListener authorises the bot token. An empty allowed list accepts
// every chat the bot can read.
func NewListener(token string, allowed []int64, handler Handler) (*Listener, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Info().Str("bot", b.Self.UserName).Msg("telegram bot authorised")
	return &Listener{bot: b, handler: handler, allowed: allowSet(allowed)}, nil
}

func allowSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// Run dispatches updates until ctx is cancelled
func (l *Listener) Run(ctx context.Context) error {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "channel_post"}

	updates := l.bot.GetUpdatesChan(u)
	defer l.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := toMessage(upd)
			if !ok {
				continue
			}
			if l.allowed != nil && !l.allowed[msg.ChannelID] {
				log.Debug().Int64("chat", msg.ChannelID).Msg("ignoring post from unlisted chat")
				continue
			}
			res := l.handler.Handle(ctx, msg)
			log.Debug().
				Str("chat", msg.ChannelName).
				Int64("msg", msg.MessageID).
				Str("kind", res.Kind).
				Str("outcome", string(res.Outcome)).
				Msg("telegram post handled")
		}
	}
}

// toMessage extracts the text, origin and reply linkage of an update
func toMessage(upd tgbot.Update) (ingest.Message, bool) {
	m := upd.ChannelPost
	if m == nil {
		m = upd.Message
	}
	if m == nil || m.Chat == nil {
		return ingest.Message{}, false
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return ingest.Message{}, false
	}

	name := m.Chat.Title
	if name == "" {
		name = m.Chat.UserName
	}

	msg := ingest.Message{
		Text:        text,
		ChannelID:   m.Chat.ID,
		ChannelName: name,
		MessageID:   int64(m.MessageID),
		ReceivedAt:  time.Unix(int64(m.Date), 0),
	}
	if m.ReplyToMessage != nil {
		reply := int64(m.ReplyToMessage.MessageID)
		msg.ReplyTo = &reply
	}
	return msg, true
}
