package infrastructure

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

// MessageHandler receives inbound platform messages.
type MessageHandler func(ctx context.Context, msg entities.Message)

// TelegramChannel polls a bot for updates and delivers replies through it.
type TelegramChannel struct {
	Bot *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewTelegramChannel(token string, log zerolog.Logger) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &TelegramChannel{
		Bot: bot,
		log: log.With().Str("channel", "telegram").Str("bot", bot.Self.UserName).Logger(),
	}, nil
}

func (t *TelegramChannel) Platform() string { return "telegram" }

func (t *TelegramChannel) SendMessage(_ context.Context, to, content string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}
	msg := tgbotapi.NewMessage(chatID, content)
	msg.ParseMode = "Markdown"
	if _, err := t.Bot.Send(msg); err != nil {
		// Replies may contain unbalanced markdown; retry as plain text.
		msg.ParseMode = ""
		_, err = t.Bot.Send(msg)
		return err
	}
	return nil
}

// Run polls for updates until ctx is cancelled. Each message is handled on
// its own goroutine; the handler serializes per conversation.
func (t *TelegramChannel) Run(ctx context.Context, handler MessageHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.Bot.GetUpdatesChan(u)

	t.log.Info().Msg("started polling")
	defer t.log.Info().Msg("stopped polling")

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if msg, ok := telegramMessage(update); ok {
				go handler(ctx, msg)
			}
		}
	}
}

func telegramMessage(update tgbotapi.Update) (entities.Message, bool) {
	if update.Message == nil || update.Message.Text == "" {
		return entities.Message{}, false
	}
	return entities.Message{
		ID:       strconv.Itoa(update.Message.MessageID),
		From:     strconv.FormatInt(update.Message.Chat.ID, 10),
		Content:  update.Message.Text,
		Platform: "telegram",
	}, true
}
