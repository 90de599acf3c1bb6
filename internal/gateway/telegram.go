package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of tgbotapi.BotAPI used to reply.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramGateway struct {
	Bot       *tgbotapi.BotAPI
	Responder Responder
	Status    StatusFunc

	out    sender
	logger *slog.Logger
}

func NewTelegramGateway(token string, responder Responder, logger *slog.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Info("authorized on telegram", "account", bot.Self.UserName)

	return &TelegramGateway{
		Bot:       bot,
		Responder: responder,
		out:       bot,
		logger:    logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			tg.handle(ctx, update)
		}
	}
}

// handle answers a single update. Updates without a text message are ignored.
func (tg *TelegramGateway) handle(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		return
	}

	user := ""
	if update.Message.From != nil {
		user = update.Message.From.UserName
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	tg.logger.Info("message received", "chat_id", chatID, "user", user)

	var response string
	switch {
	case update.Message.IsCommand() && update.Message.Command() == "status" && tg.Status != nil:
		response = tg.Status()
	case update.Message.IsCommand() && update.Message.Command() == "start":
		response = "Send me a request and I'll plan and run it."
	default:
		response = tg.Responder.Respond(ctx, chatID, update.Message.Text)
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, response)
	if _, err := tg.out.Send(msg); err != nil {
		tg.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "Markdown"
	_, err = tg.out.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	if tg.Bot != nil {
		tg.Bot.StopReceivingUpdates()
	}
	return nil
}
