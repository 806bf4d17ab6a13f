package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedbackTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_transitions_total",
		Help: "Переходы хранилища обратной связи",
	}, []string{"kind", "reason"})

	FeedbackVisible = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedback_visible",
		Help: "1, если на дисплее есть текущее сообщение",
	})

	FeedbackSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_submissions_total",
		Help: "Входящие сообщения по источнику и результату",
	}, []string{"source", "result"})

	FanoutSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_subscribers",
		Help: "Текущее число подписчиков рассылки",
	})

	FanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_dropped_total",
		Help: "События, не доставленные из-за переполненного буфера подписчика",
	})

	PollResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_cycles_total",
		Help: "Циклы опроса по результату",
	}, []string{"result"})

	NotifierErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_errors_total",
		Help: "Ошибки доставки внешним потребителям",
	}, []string{"notifier"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedbackTransitions,
		FeedbackVisible,
		FeedbackSubmissions,
		FanoutSubscribers,
		FanoutDropped,
		PollResults,
		NotifierErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveTransition учитывает переход хранилища и обновляет признак видимости.
func ObserveTransition(kind, reason string, visible bool) {
	FeedbackTransitions.WithLabelValues(kind, reason).Inc()
	if visible {
		FeedbackVisible.Set(1)
	} else {
		FeedbackVisible.Set(0)
	}
}

// IncSubmission увеличивает счётчик входящих сообщений.
func IncSubmission(source, result string) {
	FeedbackSubmissions.WithLabelValues(source, result).Inc()
}

// IncPoll увеличивает счётчик циклов опроса.
func IncPoll(result string) {
	PollResults.WithLabelValues(result).Inc()
}

// IncNotifierError увеличивает счётчик ошибок внешнего потребителя.
func IncNotifierError(notifier string) {
	NotifierErrors.WithLabelValues(notifier).Inc()
}
