// Package feedback хранит текущее сообщение обратной связи и его таймер автоскрытия.
package feedback

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
	"feedback-relay/internal/infra/timer"
)

// Publisher получает переходы хранилища. Publish не должен блокироваться.
type Publisher interface {
	Publish(event domain.FeedbackEvent)
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт логгер хранилища.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов сообщений.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Store: единственный источник истины о текущем сообщении.
// Все изменения сериализуются одним мьютексом, публикация происходит под ним же.
type Store struct {
	mu       sync.Mutex
	timers   timer.Scheduler
	duration time.Duration
	pub      Publisher
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string

	current *domain.FeedbackMessage
	handle  timer.Handle
	// gen растёт при каждой смене сообщения; колбэк таймера с устаревшим gen игнорируется.
	gen uint64
}

// NewStore создаёт хранилище. pub может быть nil.
func NewStore(timers timer.Scheduler, duration time.Duration, pub Publisher, opts ...Option) *Store {
	s := &Store{
		timers:   timers,
		duration: duration,
		pub:      pub,
		log:      zerolog.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Duration возвращает время показа сообщения.
func (s *Store) Duration() time.Duration { return s.duration }

// Set устанавливает новое сообщение и перезапускает таймер.
// Пустой текст игнорируется, возвращается false.
func (s *Store) Set(text, image string) (domain.FeedbackMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.FeedbackMessage{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.Cancel(s.handle)
	reason := "set"
	if s.current != nil {
		reason = "replace"
	}

	s.gen++
	gen := s.gen
	now := s.now()
	msg := domain.FeedbackMessage{
		ID:         s.newID(),
		Text:       text,
		Image:      strings.TrimSpace(image),
		ReceivedAt: now,
	}
	s.handle = s.timers.Schedule(s.duration, func() { s.expire(gen) })
	if s.handle.Armed() {
		msg.ExpiresAt = now.Add(max(s.duration, 0))
	}
	s.current = &msg

	s.log.Debug().Str("id", msg.ID).Str("reason", reason).Time("expires_at", msg.ExpiresAt).Msg("feedback: сообщение установлено")
	s.publish(domain.EventShow, msg, reason)
	return msg, true
}

// Clear снимает текущее сообщение. Возвращает false, если сообщения не было.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(domain.ClearExplicit)
}

// Current возвращает копию текущего сообщения.
func (s *Store) Current() (domain.FeedbackMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.FeedbackMessage{}, false
	}
	return *s.current, true
}

// Stop отменяет таймер без публикации событий. Используется при остановке процесса.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers.Cancel(s.handle)
	s.handle = timer.Handle{}
	s.gen++
}

func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || gen != s.gen {
		s.log.Debug().Uint64("gen", gen).Uint64("current_gen", s.gen).Msg("feedback: устаревший таймер проигнорирован")
		return
	}
	s.clearLocked(domain.ClearExpired)
}

func (s *Store) clearLocked(reason domain.ClearReason) bool {
	if s.current == nil {
		return false
	}
	s.timers.Cancel(s.handle)
	s.handle = timer.Handle{}
	s.gen++
	msg := *s.current
	s.current = nil

	s.log.Debug().Str("id", msg.ID).Str("reason", string(reason)).Msg("feedback: сообщение снято")
	s.publish(domain.EventHide, msg, string(reason))
	return true
}

func (s *Store) publish(kind domain.EventKind, msg domain.FeedbackMessage, reason string) {
	metrics.ObserveTransition(string(kind), reason, kind == domain.EventShow)
	if s.pub == nil {
		return
	}
	s.pub.Publish(domain.FeedbackEvent{Kind: kind, Message: msg, At: s.now()})
}
