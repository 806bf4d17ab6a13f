// Package telegram доставляет показанные сообщения в чат оператора.
package telegram

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
)

// Sender: часть *tgbotapi.BotAPI, используемая уведомителем.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier: потребитель рассылки, отправляющий события show в Telegram.
type Notifier struct {
	bot    Sender
	chatID int64
	log    zerolog.Logger
}

// NewNotifier создаёт уведомитель.
func NewNotifier(bot Sender, chatID int64, log zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, log: log}
}

// Connect создаёт клиента Bot API по токену.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

// Handle отправляет уведомление. События hide игнорируются.
func (n *Notifier) Handle(event domain.FeedbackEvent) {
	if event.Kind != domain.EventShow {
		return
	}

	var msg tgbotapi.Chattable
	if isRemoteImage(event.Message.Image) {
		photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FileURL(event.Message.Image))
		photo.Caption = FormatShow(event.Message, captionLimit)
		msg = photo
	} else {
		msg = tgbotapi.NewMessage(n.chatID, FormatShow(event.Message, messageLimit))
	}

	start := time.Now()
	_, err := n.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(n.chatID, 10), start, err)
	if err != nil {
		metrics.IncNotifierError("telegram")
		n.log.Error().Err(err).Str("id", event.Message.ID).Msg("telegram: не удалось отправить уведомление")
	}
}
