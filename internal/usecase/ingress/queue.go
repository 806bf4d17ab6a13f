package ingress

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
)

// Consumer: источник тел сообщений из брокера.
type Consumer interface {
	Consume(ctx context.Context, handle func(context.Context, []byte) error) error
}

// QueueRunner: входящая стратегия через очередь. Политика та же, что у push:
// отсутствующий текст заменяется значением по умолчанию.
type QueueRunner struct {
	consumer Consumer
	sink     domain.FeedbackSink
	fallback string
	log      zerolog.Logger
}

// NewQueueRunner создаёт стратегию чтения из очереди.
func NewQueueRunner(consumer Consumer, sink domain.FeedbackSink, fallback string, log zerolog.Logger) *QueueRunner {
	return &QueueRunner{consumer: consumer, sink: sink, fallback: fallback, log: log}
}

// Name возвращает имя стратегии.
func (r *QueueRunner) Name() string { return string(ModeAMQP) }

// Run читает очередь до отмены ctx.
func (r *QueueRunner) Run(ctx context.Context) error {
	return r.consumer.Consume(ctx, r.Handle)
}

// Handle разбирает тело сообщения. Битые сообщения подтверждаются и отбрасываются.
func (r *QueueRunner) Handle(ctx context.Context, body []byte) error {
	var payload domain.FeedbackPayload
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			r.log.Warn().Err(err).Int("size", len(body)).Msg("ingress: битое сообщение из очереди отброшено")
			return nil
		}
	}
	text, image := Resolve(payload, r.fallback)
	r.sink.Submit(ctx, domain.SourceAMQP, text, image)
	return nil
}
