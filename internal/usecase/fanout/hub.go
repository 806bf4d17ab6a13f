// Package fanout рассылает переходы хранилища обратной связи подписчикам-дисплеям.
//
// Publish никогда не блокируется: если буфер подписчика заполнен, событие
// для этого подписчика отбрасывается и учитывается в Dropped. Остальные
// подписчики и вызывающее хранилище от этого не страдают.
package fanout

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
)

var (
	ErrHubClosed          = errors.New("fanout: hub closed")
	ErrSubscriberExists   = errors.New("fanout: subscriber already exists")
	ErrSubscriberNotFound = errors.New("fanout: subscriber not found")
	ErrNilChannel         = errors.New("fanout: nil channel")
)

// SubscriberStats: счётчики доставки одного подписчика.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats: снимок счётчиков рассылки.
type Stats struct {
	TotalPublished uint64
	Subscribers    map[string]SubscriberStats
}

type subscriber struct {
	id      string
	ch      chan<- domain.FeedbackEvent
	owned   chan domain.FeedbackEvent
	done    chan struct{}
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Hub распределяет события между подписчиками.
type Hub struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished atomic.Uint64
	closed         bool
	log            zerolog.Logger
}

// NewHub создаёт рассылку.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
		log:         log,
	}
}

// Subscribe регистрирует канал подписчика. Канал принадлежит вызывающему и не закрывается хабом.
func (h *Hub) Subscribe(id string, ch chan<- domain.FeedbackEvent) error {
	if ch == nil {
		return ErrNilChannel
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, exists := h.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	h.subscribers[id] = &subscriber{id: id, ch: ch}
	metrics.FanoutSubscribers.Set(float64(len(h.subscribers)))
	return nil
}

// SubscribeFunc запускает потребителя в отдельной горутине с буфером buffer.
// Паника в fn перехватывается и не влияет на других подписчиков.
func (h *Hub) SubscribeFunc(id string, buffer int, fn func(domain.FeedbackEvent)) error {
	if fn == nil {
		return fmt.Errorf("fanout: nil handler for %s", id)
	}
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan domain.FeedbackEvent, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if _, exists := h.subscribers[id]; exists {
		h.mu.Unlock()
		return ErrSubscriberExists
	}
	sub := &subscriber{id: id, ch: ch, owned: ch, done: make(chan struct{})}
	h.subscribers[id] = sub
	metrics.FanoutSubscribers.Set(float64(len(h.subscribers)))
	h.mu.Unlock()

	go func() {
		defer close(sub.done)
		for ev := range ch {
			h.deliver(id, fn, ev)
		}
	}()
	return nil
}

func (h *Hub) deliver(id string, fn func(domain.FeedbackEvent), ev domain.FeedbackEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncNotifierError(id)
			h.log.Error().Str("subscriber", id).Interface("panic", r).Msg("fanout: подписчик упал")
		}
	}()
	fn(ev)
}

// Publish доставляет событие всем подписчикам без блокировки.
func (h *Hub) Publish(ev domain.FeedbackEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	h.totalPublished.Add(1)

	for _, sub := range h.subscribers {
		select {
		case sub.ch <- ev:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			metrics.FanoutDropped.Inc()
			h.log.Warn().Str("subscriber", sub.id).Str("kind", string(ev.Kind)).Msg("fanout: буфер подписчика заполнен, событие отброшено")
		}
	}
}

// Unsubscribe удаляет подписчика. Для SubscribeFunc дожидается обработки уже принятых событий.
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	sub, exists := h.subscribers[id]
	if !exists {
		h.mu.Unlock()
		return ErrSubscriberNotFound
	}
	delete(h.subscribers, id)
	metrics.FanoutSubscribers.Set(float64(len(h.subscribers)))
	h.mu.Unlock()

	sub.stop()
	return nil
}

// Stats возвращает снимок счётчиков.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := Stats{
		TotalPublished: h.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(h.subscribers)),
	}
	for id, sub := range h.subscribers {
		out.Subscribers[id] = SubscriberStats{
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		}
	}
	return out
}

// Len возвращает число подписчиков.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close останавливает рассылку и всех func-подписчиков.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subscribers
	h.subscribers = nil
	metrics.FanoutSubscribers.Set(0)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) stop() {
	if s.owned == nil {
		return
	}
	close(s.owned)
	<-s.done
}
