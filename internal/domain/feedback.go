package domain

import (
	"strings"
	"time"
)

// FeedbackMessage представляет текущее сообщение обратной связи на дисплее.
type FeedbackMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"message"`
	Image      string    `json:"image,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	// ExpiresAt нулевой, если автоскрытие отключено.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// EventKind описывает тип перехода хранилища.
type EventKind string

const (
	// EventShow: в хранилище установлено новое сообщение.
	EventShow EventKind = "show"
	// EventHide: текущее сообщение снято (по таймеру или явно).
	EventHide EventKind = "hide"
)

// FeedbackEvent доставляется подписчикам при каждом переходе хранилища.
type FeedbackEvent struct {
	Kind    EventKind       `json:"kind"`
	Message FeedbackMessage `json:"message"`
	At      time.Time       `json:"at"`
}

// Visible сообщает, нужно ли показывать сообщение.
func (e FeedbackEvent) Visible() bool {
	return e.Kind == EventShow
}

// FeedbackPayload: тело входящего события (push, poll, amqp).
// Message == nil означает, что поле отсутствовало.
type FeedbackPayload struct {
	Message *string `json:"message"`
	Image   *string `json:"image"`
}

// Text возвращает очищенный текст сообщения или пустую строку.
func (p FeedbackPayload) Text() string {
	if p.Message == nil {
		return ""
	}
	return strings.TrimSpace(*p.Message)
}

// ImageURL возвращает ссылку на картинку или пустую строку.
func (p FeedbackPayload) ImageURL() string {
	if p.Image == nil {
		return ""
	}
	return strings.TrimSpace(*p.Image)
}

// FeedbackSource описывает источник входящего сообщения.
type FeedbackSource string

const (
	SourcePush  FeedbackSource = "push"
	SourcePoll  FeedbackSource = "poll"
	SourceAMQP  FeedbackSource = "amqp"
	SourceTest  FeedbackSource = "test"
	SourceUsage FeedbackSource = "usage"
)

// ClearReason описывает причину снятия сообщения.
type ClearReason string

const (
	ClearExpired  ClearReason = "expired"
	ClearExplicit ClearReason = "explicit"
)
