package domain

import (
	"context"
	"time"
)

// FeedbackSink принимает сообщения от входящих стратегий (push, poll, amqp).
// Возвращает false, если сообщение не было установлено (пустой текст или дубликат).
type FeedbackSink interface {
	Submit(ctx context.Context, source FeedbackSource, text, image string) bool
}

// FeedbackReader отдаёт текущее состояние дисплея.
type FeedbackReader interface {
	Current() (FeedbackMessage, bool)
}

// FeedbackClearer снимает текущее сообщение.
type FeedbackClearer interface {
	Clear() bool
}

// Deduper отмечает ключ и сообщает, встречался ли он в пределах окна.
type Deduper interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
	// Forget снимает отметку, чтобы непринятое сообщение можно было прислать повторно.
	Forget(ctx context.Context, key string) error
}

// EventPublisher публикует переходы хранилища во внешний брокер.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event FeedbackEvent) error
}

// TagRepo управляет реестром меток.
type TagRepo interface {
	CreateTag(ctx context.Context, tag Tag) error
	ListTags(ctx context.Context) ([]Tag, error)
	GetTag(ctx context.Context, tagID string) (Tag, error)
	DeleteTag(ctx context.Context, tagID string) error
}

// UsageEventRepo сохраняет события использования.
type UsageEventRepo interface {
	SaveUsageEvent(ctx context.Context, event UsageEvent) (UsageEvent, error)
}
