// Package httpapi реализует HTTP интерфейс ретранслятора: входящие сообщения, состояние дисплея,
// поток событий и реестр меток.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/usecase/tags"
)

// Store: часть хранилища, нужная HTTP слою.
type Store interface {
	domain.FeedbackReader
	domain.FeedbackClearer
}

// Broadcaster: подписка дисплеев на переходы хранилища.
type Broadcaster interface {
	Subscribe(id string, ch chan<- domain.FeedbackEvent) error
	Unsubscribe(id string) error
}

// TagService: сценарии реестра меток.
type TagService interface {
	Register(ctx context.Context, in tags.RegisterInput) (string, error)
	List(ctx context.Context) ([]domain.Tag, error)
	Get(ctx context.Context, tagID string) (domain.Tag, error)
	Delete(ctx context.Context, tagID string) error
	RecordUsage(ctx context.Context, in tags.UsageInput) (domain.UsageEvent, error)
}

// Config: параметры HTTP слоя.
type Config struct {
	DefaultMessage string
	TestMessage    string
	TestImage      string
	MaxBodyBytes   int64
	StreamBuffer   int
	PingInterval   time.Duration

	// DisablePush отключает приём POST /feedback, если push не входит в INGRESS_MODE.
	DisablePush bool
}

// Handler обслуживает маршруты ретранслятора.
type Handler struct {
	cfg   Config
	sink  domain.FeedbackSink
	store Store
	hub   Broadcaster
	tags  TagService
	log   zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New создаёт обработчики. tagSvc может быть nil, тогда маршруты меток не регистрируются.
func New(cfg Config, sink domain.FeedbackSink, store Store, hub Broadcaster, tagSvc TagService, log zerolog.Logger) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	return &Handler{
		cfg:   cfg,
		sink:  sink,
		store: store,
		hub:   hub,
		tags:  tagSvc,
		log:   log,
		done:  make(chan struct{}),
	}
}

// Mount регистрирует маршруты.
func (h *Handler) Mount(r chi.Router) {
	if !h.cfg.DisablePush {
		r.Post("/feedback", h.receiveFeedback)
	}
	r.Get("/feedback", h.currentFeedback)
	r.Delete("/feedback", h.clearFeedback)
	r.Post("/feedback/test", h.testFeedback)
	r.Get("/feedback/stream", h.stream)
	// прежний адрес тестового сообщения, старые клиенты вызывают его через GET
	r.Get("/test-feedback", h.testFeedback)
	r.Post("/test-feedback", h.testFeedback)

	if h.tags == nil {
		return
	}
	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/tags", h.registerTag)
		api.Get("/tags", h.listTags)
		api.Get("/tags/{tagID}", h.getTag)
		api.Delete("/tags/{tagID}", h.deleteTag)
		api.Post("/usage-events", h.usageEvent)
	})
	// адреса, которые использует считыватель меток
	r.Post("/register", h.registerTag)
	r.Get("/tags", h.listTags)
	r.Post("/usage-event", h.usageEvent)
}

// Close завершает открытые потоки событий.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
