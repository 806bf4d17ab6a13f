package telegram

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"feedback-relay/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestNotifierSendsShowOnly(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 42, zerolog.Nop())

	n.Handle(domain.FeedbackEvent{Kind: domain.EventShow, Message: domain.FeedbackMessage{Text: "えらい", Image: "/static/imgs/ikemenn.png"}})
	n.Handle(domain.FeedbackEvent{Kind: domain.EventHide, Message: domain.FeedbackMessage{Text: "えらい"}})

	require.Len(t, sender.sent, 1)
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, int64(42), msg.ChatID)
	require.Equal(t, "えらい\n🖼 /static/imgs/ikemenn.png", msg.Text)
}

func TestNotifierSendsPhotoForRemoteImage(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 7, zerolog.Nop())

	n.Handle(domain.FeedbackEvent{Kind: domain.EventShow, Message: domain.FeedbackMessage{Text: "えらい", Image: "https://cdn.example.com/a.png"}})

	require.Len(t, sender.sent, 1)
	photo, ok := sender.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	require.Equal(t, "えらい", photo.Caption)
	require.Equal(t, tgbotapi.FileURL("https://cdn.example.com/a.png"), photo.File)
}

func TestNotifierSwallowsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("429")}
	n := NewNotifier(sender, 1, zerolog.Nop())
	n.Handle(domain.FeedbackEvent{Kind: domain.EventShow, Message: domain.FeedbackMessage{Text: "x"}})
	require.Len(t, sender.sent, 1)
}

func TestFormatShowTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("化", 10)
	got := FormatShow(domain.FeedbackMessage{Text: long}, 5)
	require.Equal(t, "化化化化…", got)
	require.Equal(t, long, FormatShow(domain.FeedbackMessage{Text: long}, 0))
	require.Equal(t, "…", truncate("abc", 1))
}
