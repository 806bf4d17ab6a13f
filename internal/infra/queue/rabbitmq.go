// Package queue публикует переходы хранилища в RabbitMQ и читает входящие события обратной связи.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
)

const (
	// KeyShown: ключ маршрутизации события показа.
	KeyShown = "feedback.shown"
	// KeyHidden: ключ маршрутизации события скрытия.
	KeyHidden = "feedback.hidden"
	// KeySubmitted: ключ по умолчанию для входящих событий.
	KeySubmitted = "feedback.submitted"

	publishTimeout = 3 * time.Second
	prefetch       = 16
)

// ErrDeliveriesClosed возвращается, когда брокер закрыл канал доставки.
var ErrDeliveriesClosed = errors.New("queue: deliveries channel closed")

// Channel: подмножество *amqp.Channel, которое использует Broker.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ domain.EventPublisher = (*Broker)(nil)

// Broker: topic-exchange для событий обратной связи.
type Broker struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	log      zerolog.Logger
}

// Dial подключается к RabbitMQ и объявляет exchange.
func Dial(url, exchange string, log zerolog.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	b, err := NewBroker(ch, exchange, log)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

// NewBroker объявляет exchange на готовом канале.
func NewBroker(ch Channel, exchange string, log zerolog.Logger) (*Broker, error) {
	if exchange == "" {
		return nil, errors.New("queue: exchange is empty")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Broker{ch: ch, exchange: exchange, log: log}, nil
}

// Close закрывает канал и соединение.
func (b *Broker) Close() {
	if b == nil {
		return
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

// RoutingKey возвращает ключ маршрутизации для события.
func RoutingKey(kind domain.EventKind) string {
	if kind == domain.EventHide {
		return KeyHidden
	}
	return KeyShown
}

// PublishEvent публикует переход хранилища.
func (b *Broker) PublishEvent(ctx context.Context, event domain.FeedbackEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	key := RoutingKey(event.Kind)
	start := time.Now()
	err = b.ch.PublishWithContext(ctx, b.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		MessageId:   uuid.NewString(),
		Timestamp:   event.At,
		Headers: amqp.Table{
			"X-Feedback-ID": event.Message.ID,
		},
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", key, start, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// HandleEvent: потребитель рассылки: публикует событие и логирует ошибку.
func (b *Broker) HandleEvent(event domain.FeedbackEvent) {
	if err := b.PublishEvent(context.Background(), event); err != nil {
		metrics.IncNotifierError("amqp")
		b.log.Error().Err(err).Str("kind", string(event.Kind)).Msg("queue: не удалось опубликовать событие")
	}
}

// Subscription: очередь, привязанная к exchange по ключу.
type Subscription struct {
	broker  *Broker
	queue   string
	key     string
	workers int
}

// Subscribe описывает подписку. Очередь объявляется при Consume.
func (b *Broker) Subscribe(queue, key string, workers int) *Subscription {
	if key == "" {
		key = KeySubmitted
	}
	if workers <= 0 {
		workers = 1
	}
	return &Subscription{broker: b, queue: queue, key: key, workers: workers}
}

// Consume читает сообщения до отмены ctx. Ошибка обработчика возвращает сообщение в очередь.
func (s *Subscription) Consume(ctx context.Context, handle func(context.Context, []byte) error) error {
	ch := s.broker.ch
	qd, err := ch.QueueDeclare(s.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(qd.Name, s.key, s.broker.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := ch.Consume(qd.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	var (
		wg     sync.WaitGroup
		closed sync.Once
		done   = make(chan struct{})
	)
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case d, ok := <-msgs:
					if !ok {
						closed.Do(func() { close(done) })
						return
					}
					if err := handle(ctx, d.Body); err != nil {
						s.broker.log.Warn().Err(err).Str("queue", qd.Name).Msg("queue: сообщение возвращено в очередь")
						_ = d.Nack(false, true)
						continue
					}
					_ = d.Ack(false)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		return nil
	case <-done:
		wg.Wait()
		if ctx.Err() != nil {
			return nil
		}
		return ErrDeliveriesClosed
	}
}
