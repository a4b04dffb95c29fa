package telegram

import (
	"testing"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestToMessageChannelPost(t *testing.T) {
	upd := tgbot.Update{ChannelPost: &tgbot.Message{
		MessageID:      42,
		Date:           1714560000,
		Chat:           &tgbot.Chat{ID: -1001, Title: "Alpha Calls"},
		Text:           "🔥 2x ALERT 🔥",
		ReplyToMessage: &tgbot.Message{MessageID: 40},
	}}

	msg, ok := toMessage(upd)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.ChannelID != -1001 || msg.ChannelName != "Alpha Calls" || msg.MessageID != 42 {
		t.Errorf("unexpected origin %+v", msg)
	}
	if msg.ReplyTo == nil || *msg.ReplyTo != 40 {
		t.Errorf("expected reply to 40, got %v", msg.ReplyTo)
	}
	if msg.ReceivedAt.Unix() != 1714560000 {
		t.Errorf("unexpected time %v", msg.ReceivedAt)
	}
}

func TestToMessageUsesCaption(t *testing.T) {
	upd := tgbot.Update{Message: &tgbot.Message{
		MessageID: 7,
		Chat:      &tgbot.Chat{ID: 55, UserName: "calls_bot"},
		Caption:   "Contract: abc",
	}}
	msg, ok := toMessage(upd)
	if !ok || msg.Text != "Contract: abc" || msg.ChannelName != "calls_bot" {
		t.Errorf("unexpected message %+v ok=%v", msg, ok)
	}
	if msg.ReplyTo != nil {
		t.Error("reply should be nil")
	}
}

func TestToMessageSkipsEmpty(t *testing.T) {
	cases := []tgbot.Update{
		{},
		{ChannelPost: &tgbot.Message{Chat: &tgbot.Chat{ID: 1}, Text: "  "}},
		{Message: &tgbot.Message{Text: "no chat"}},
	}
	for i, upd := range cases {
		if _, ok := toMessage(upd); ok {
			t.Errorf("case %d: expected skip", i)
		}
	}
}

func TestAllowSet(t *testing.T) {
	if allowSet(nil) != nil {
		t.Error("empty list should allow everything")
	}
	s := allowSet([]int64{-1, -2})
	if !s[-1] || s[-3] {
		t.Errorf("unexpected set %v", s)
	}
}
