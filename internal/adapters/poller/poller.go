// Package poller периодически забирает состояние обратной связи с удалённого эндпоинта.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
)

const maxBodyBytes = 64 << 10

// Config: параметры опроса.
type Config struct {
	Endpoint string
	Interval time.Duration
	Timeout  time.Duration
}

// Poller опрашивает эндпоинт сразу при старте и далее с интервалом.
// Отсутствие сообщения в ответе ничего не меняет.
type Poller struct {
	cfg    Config
	client *http.Client
	sink   domain.FeedbackSink
	log    zerolog.Logger
}

// New создаёт опросчик. client может быть nil.
func New(cfg Config, client *http.Client, sink domain.FeedbackSink, log zerolog.Logger) *Poller {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Poller{cfg: cfg, client: client, sink: sink, log: log}
}

// Name возвращает имя стратегии.
func (p *Poller) Name() string { return "poll" }

// Run опрашивает до отмены ctx.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Str("endpoint", p.cfg.Endpoint).Dur("interval", p.cfg.Interval).Msg("poller: старт")
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller: остановка")
			return nil
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle выполняет один запрос. Ошибки логируются и не прерывают опрос.
func (p *Poller) Cycle(ctx context.Context) {
	payload, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.IncPoll("error")
		p.log.Warn().Err(err).Msg("poller: цикл пропущен")
		return
	}
	text := payload.Text()
	if text == "" {
		metrics.IncPoll("empty")
		return
	}
	if p.sink.Submit(ctx, domain.SourcePoll, text, payload.ImageURL()) {
		metrics.IncPoll("accepted")
		return
	}
	metrics.IncPoll("skipped")
}

func (p *Poller) fetch(ctx context.Context) (domain.FeedbackPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint, nil)
	if err != nil {
		return domain.FeedbackPayload{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	metrics.ObserveNetworkRequest("poller", "get_feedback", req.URL.Host, start, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return domain.FeedbackPayload{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return domain.FeedbackPayload{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return domain.FeedbackPayload{}, errors.New("response body too large")
	}
	var payload domain.FeedbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.FeedbackPayload{}, fmt.Errorf("decode body: %w", err)
	}
	return payload, nil
}
