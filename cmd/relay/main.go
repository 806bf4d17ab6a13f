package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"feedback-relay/internal/adapters/httpapi"
	"feedback-relay/internal/adapters/poller"
	"feedback-relay/internal/adapters/repo"
	"feedback-relay/internal/adapters/telegram"
	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/cache"
	"feedback-relay/internal/infra/config"
	"feedback-relay/internal/infra/db"
	httpinfra "feedback-relay/internal/infra/http"
	applog "feedback-relay/internal/infra/log"
	"feedback-relay/internal/infra/metrics"
	"feedback-relay/internal/infra/queue"
	"feedback-relay/internal/infra/timer"
	"feedback-relay/internal/usecase/fanout"
	"feedback-relay/internal/usecase/feedback"
	"feedback-relay/internal/usecase/ingress"
	"feedback-relay/internal/usecase/tags"
)

const (
	notifierBuffer = 64
	shutdownWait   = 5 * time.Second
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	modes, err := ingress.ParseModes(cfg.Ingress.Mode)
	if err != nil {
		logger.Fatal().Err(err).Msg("relay: неверный INGRESS_MODE")
	}
	if modes.Has(ingress.ModePoll) && cfg.Poll.Endpoint == "" {
		logger.Fatal().Msg("relay: для poll нужен POLL_ENDPOINT")
	}
	if modes.Has(ingress.ModeAMQP) && cfg.AMQP.URL == "" {
		logger.Fatal().Msg("relay: для amqp нужен AMQP_URL")
	}
	policy, err := timer.ParsePolicy(cfg.Feedback.NonPositivePolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("relay: неверная политика таймера")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := fanout.NewHub(applog.Component(logger, "fanout"))
	defer hub.Close()

	store := feedback.NewStore(timer.New(policy), cfg.Feedback.Duration, hub,
		feedback.WithLogger(applog.Component(logger, "feedback")))
	defer store.Stop()

	var dedup domain.Deduper
	if modes.NeedsDedup() {
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer client.Close()
			dedup = cache.NewRedis(client, "")
		} else {
			dedup = cache.NewMemory()
		}
	}
	sink := ingress.NewSink(store, dedup, cfg.Ingress.DedupWindow, applog.Component(logger, "ingress"))

	var broker *queue.Broker
	if cfg.AMQP.URL != "" {
		broker, err = queue.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, applog.Component(logger, "queue"))
		if err != nil {
			logger.Fatal().Err(err).Msg("relay: нет подключения к RabbitMQ")
		}
		defer broker.Close()
		if cfg.AMQP.Publish {
			subscribe(logger, hub, "amqp", broker.HandleEvent)
		}
	}

	if cfg.Telegram.Token != "" {
		bot, err := telegram.Connect(cfg.Telegram.Token)
		if err != nil {
			logger.Error().Err(err).Msg("relay: telegram недоступен, уведомления отключены")
		} else {
			notifier := telegram.NewNotifier(bot, cfg.Telegram.NotifyChatID, applog.Component(logger, "telegram"))
			subscribe(logger, hub, "telegram", notifier.Handle)
		}
	}

	var tagSvc httpapi.TagService
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("relay: нет подключения к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("relay: не удалось создать схему")
		}
		var trigger *tags.Trigger
		if cfg.Feedback.TriggerOnLip {
			trigger = &tags.Trigger{Sink: sink, Text: cfg.Feedback.TestMessage, Image: cfg.Feedback.TestImage}
		}
		tagSvc = tags.NewService(pg, pg, trigger, applog.Component(logger, "tags"))
	}

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	api := httpapi.New(httpapi.Config{
		DefaultMessage: cfg.Feedback.DefaultMessage,
		TestMessage:    cfg.Feedback.TestMessage,
		TestImage:      cfg.Feedback.TestImage,
		MaxBodyBytes:   cfg.Feedback.MaxBodyBytes,
		StreamBuffer:   cfg.Stream.Buffer,
		PingInterval:   cfg.Stream.PingInterval,
		DisablePush:    !modes.Has(ingress.ModePush),
	}, sink, store, hub, tagSvc, applog.Component(logger, "httpapi"))
	api.Mount(srv.Router)

	var runners []ingress.Runner
	if modes.Has(ingress.ModePoll) {
		runners = append(runners, poller.New(poller.Config{
			Endpoint: cfg.Poll.Endpoint,
			Interval: cfg.Poll.Interval,
			Timeout:  cfg.Poll.Timeout,
		}, nil, sink, applog.Component(logger, "poller")))
	}
	if modes.Has(ingress.ModeAMQP) {
		sub := broker.Subscribe(cfg.AMQP.Queue, cfg.AMQP.IngressKey, cfg.AMQP.Workers)
		runners = append(runners, ingress.NewQueueRunner(sub, sink, cfg.Feedback.DefaultMessage, applog.Component(logger, "ingress")))
	}

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r ingress.Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				logger.Error().Err(err).Str("runner", r.Name()).Msg("relay: входящая стратегия остановлена")
			}
		}(r)
	}

	go func() {
		if err := srv.Start(cfg.Addr()); err != nil {
			logger.Error().Err(err).Msg("relay: сервер остановлен")
			stop()
		}
	}()
	logger.Info().
		Str("modes", modes.String()).
		Dur("duration", cfg.Feedback.Duration).
		Str("timer_policy", policy.String()).
		Bool("dedup", dedup != nil).
		Msg("relay: старт")

	<-ctx.Done()
	logger.Info().Msg("relay: остановка")
	api.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("relay: ошибка остановки сервера")
	}
	wg.Wait()
	drain(store, hub)
}

// drain гасит таймер хранилища и потребителей рассылки до отложенного закрытия брокера и БД.
func drain(store *feedback.Store, hub *fanout.Hub) {
	store.Stop()
	hub.Close()
}

func subscribe(logger zerolog.Logger, hub *fanout.Hub, name string, fn func(domain.FeedbackEvent)) {
	if err := hub.SubscribeFunc(name, notifierBuffer, fn); err != nil {
		logger.Fatal().Err(err).Str("subscriber", name).Msg("relay: не удалось подписать потребителя")
	}
}
