package messaging

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/grievanceplatform/orchestrator/core"
)

// botSender is the narrow slice of *tgbotapi.BotAPI this channel needs,
// grounded on zkoranges-go-claw's internal/channels/telegram.go, whose
// TelegramChannel.reply sends a message the same way (tgbotapi.NewMessage +
// bot.Send) and logs send failures without treating them as fatal.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel notifies a Telegram chat of a new or updated grievance.
// Every notification goes to the single chat id the channel was built with;
// the target office appears only in the message text.
type TelegramChannel struct {
	bot    botSender
	chatID int64
	logger core.ComponentAwareLogger
}

// NewTelegramChannel constructs a channel authenticated with token, posting
// every notification to chatID.
func NewTelegramChannel(token string, chatID int64, logger core.ComponentAwareLogger) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("messaging: telegram init: %w", err)
	}
	return &TelegramChannel{bot: bot, chatID: chatID, logger: logger}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(_ context.Context, n Notification) error {
	text := fmt.Sprintf("%s\n\n%s\n\nGrievance: %s\nOffice: %s", n.Subject, n.Body, n.GrievanceID, n.OfficeName)
	msg := tgbotapi.NewMessage(c.chatID, text)
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("messaging: telegram send: %w", err)
	}
	return nil
}
