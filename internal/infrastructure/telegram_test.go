package infrastructure

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestTelegramMessage(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 42,
		Chat:      &tgbotapi.Chat{ID: 12345},
		Text:      "halo",
	}}

	msg, ok := telegramMessage(update)
	if !ok {
		t.Fatal("expected text message to be accepted")
	}
	if msg.UserID() != "telegram:12345" {
		t.Fatalf("user id = %q, want telegram:12345", msg.UserID())
	}
	if msg.ID != "42" || msg.Content != "halo" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestTelegramMessageIgnoresNonText(t *testing.T) {
	if _, ok := telegramMessage(tgbotapi.Update{}); ok {
		t.Fatal("update without message should be ignored")
	}
	update := tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}}
	if _, ok := telegramMessage(update); ok {
		t.Fatal("message without text should be ignored")
	}
}
