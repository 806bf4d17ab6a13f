// Package ingress собирает входящие стратегии (push, poll, amqp) перед хранилищем.
package ingress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
)

// Setter: часть хранилища, которую использует Sink.
type Setter interface {
	Set(text, image string) (domain.FeedbackMessage, bool)
}

// Sink передаёт сообщения в хранилище, при необходимости отбрасывая повторы.
type Sink struct {
	store  Setter
	dedup  domain.Deduper
	window time.Duration
	log    zerolog.Logger
}

var _ domain.FeedbackSink = (*Sink)(nil)

// NewSink создаёт Sink. Если dedup равен nil или window <= 0, повторы не отбрасываются.
func NewSink(store Setter, dedup domain.Deduper, window time.Duration, log zerolog.Logger) *Sink {
	return &Sink{store: store, dedup: dedup, window: window, log: log}
}

// Submit реализует domain.FeedbackSink.
func (s *Sink) Submit(ctx context.Context, source domain.FeedbackSource, text, image string) bool {
	text = strings.TrimSpace(text)
	image = strings.TrimSpace(image)
	if text == "" {
		metrics.IncSubmission(string(source), "empty")
		return false
	}

	var key string
	if s.dedup != nil && s.window > 0 {
		key = DedupKey(text, image)
		seen, err := s.dedup.Seen(ctx, key, s.window)
		switch {
		case err != nil:
			// без дедупликатора сообщение всё равно показывается
			s.log.Warn().Err(err).Str("source", string(source)).Msg("ingress: дедупликация недоступна")
		case seen:
			metrics.IncSubmission(string(source), "duplicate")
			s.log.Debug().Str("source", string(source)).Msg("ingress: повтор отброшен")
			return false
		}
	}

	msg, ok := s.store.Set(text, image)
	if !ok {
		metrics.IncSubmission(string(source), "rejected")
		if key != "" {
			if err := s.dedup.Forget(ctx, key); err != nil {
				s.log.Warn().Err(err).Str("source", string(source)).Msg("ingress: не удалось снять отметку дедупликации")
			}
		}
		return false
	}
	metrics.IncSubmission(string(source), "accepted")
	s.log.Info().Str("source", string(source)).Str("id", msg.ID).Msg("ingress: сообщение принято")
	return true
}

// DedupKey строит ключ дедупликации по тексту и картинке.
func DedupKey(text, image string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + image))
	return hex.EncodeToString(sum[:])
}

// Resolve применяет политику подстановки по умолчанию (push, amqp):
// отсутствующий или пустой текст заменяется на fallback.
func Resolve(p domain.FeedbackPayload, fallback string) (text, image string) {
	text = p.Text()
	if text == "" {
		text = strings.TrimSpace(fallback)
	}
	return text, p.ImageURL()
}
