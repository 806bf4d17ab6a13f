package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/timer"
	"feedback-relay/internal/usecase/fanout"
	"feedback-relay/internal/usecase/feedback"
	"feedback-relay/internal/usecase/ingress"
)

const defaultMessage = "💄 化粧してえらい！！"

type env struct {
	router  chi.Router
	handler *Handler
	store   *feedback.Store
	timers  *timer.Manual
	hub     *fanout.Hub
}

func newEnv(t *testing.T, mkTags func(domain.FeedbackSink) TagService) *env {
	t.Helper()
	hub := fanout.NewHub(zerolog.Nop())
	t.Cleanup(hub.Close)
	timers := timer.NewManual(timer.Disabled)
	store := feedback.NewStore(timers, 10*time.Second, hub)
	sink := ingress.NewSink(store, nil, 0, zerolog.Nop())
	var tagSvc TagService
	if mkTags != nil {
		tagSvc = mkTags(sink)
	}

	h := New(Config{
		DefaultMessage: defaultMessage,
		TestMessage:    "今日も化粧してえらい！！",
		TestImage:      "/static/imgs/ikemenn.png",
		MaxBodyBytes:   1024,
		PingInterval:   time.Hour,
	}, sink, store, hub, tagSvc, zerolog.Nop())
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	h.Mount(r)
	return &env{router: r, handler: h, store: store, timers: timers, hub: hub}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestPostFeedbackSetsMessage(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/feedback", `{"message":"えらい","image":"/a.png"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"received"}`, rec.Body.String())

	msg, ok := e.store.Current()
	require.True(t, ok)
	require.Equal(t, "えらい", msg.Text)
	require.Equal(t, "/a.png", msg.Image)
}

func TestPostFeedbackWithoutMessageUsesDefault(t *testing.T) {
	for name, body := range map[string]string{
		"empty object":  `{}`,
		"empty message": `{"message":""}`,
		"blank message": `{"message":"   "}`,
		"null":          `null`,
		"empty body":    ``,
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, nil)
			rec := e.do(http.MethodPost, "/feedback", body)
			require.Equal(t, http.StatusOK, rec.Code)

			msg, ok := e.store.Current()
			require.True(t, ok)
			require.Equal(t, defaultMessage, msg.Text)
		})
	}
}

func TestPostFeedbackMalformedLeavesStore(t *testing.T) {
	for name, body := range map[string]string{
		"broken json": `{"message":`,
		"wrong type":  `{"message":42}`,
		"array":       `["x"]`,
		"too large":   `{"message":"` + strings.Repeat("a", 2048) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.store.Set("before", "")

			rec := e.do(http.MethodPost, "/feedback", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "error")

			msg, ok := e.store.Current()
			require.True(t, ok)
			require.Equal(t, "before", msg.Text)
		})
	}
}

func TestGetFeedback(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodGet, "/feedback", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"","image":""}`, rec.Body.String())

	e.store.Set("えらい", "/a.png")
	rec = e.do(http.MethodGet, "/feedback", "")
	var view feedbackView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "えらい", view.Message)
	require.Equal(t, "/a.png", view.Image)
	require.NotEmpty(t, view.ID)
	require.NotNil(t, view.ExpiresAt)

	e.timers.Advance(10 * time.Second)
	rec = e.do(http.MethodGet, "/feedback", "")
	require.JSONEq(t, `{"message":"","image":""}`, rec.Body.String())
}

func TestDeleteFeedback(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Set("A", "")

	rec := e.do(http.MethodDelete, "/feedback", "")
	require.JSONEq(t, `{"cleared":true}`, rec.Body.String())
	rec = e.do(http.MethodDelete, "/feedback", "")
	require.JSONEq(t, `{"cleared":false}`, rec.Body.String())
}

func TestTestFeedback(t *testing.T) {
	for _, path := range []string{"/feedback/test", "/test-feedback"} {
		e := newEnv(t, nil)
		rec := e.do(http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, rec.Code)

		msg, ok := e.store.Current()
		require.True(t, ok)
		require.Equal(t, "今日も化粧してえらい！！", msg.Text)
		require.Equal(t, "/static/imgs/ikemenn.png", msg.Image)
	}
}

func TestLegacyTestFeedbackAcceptsGet(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodGet, "/test-feedback", "")
	require.Equal(t, http.StatusOK, rec.Code)

	msg, ok := e.store.Current()
	require.True(t, ok)
	require.Equal(t, "今日も化粧してえらい！！", msg.Text)
}

func TestTagRoutesDisabledWithoutService(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(http.MethodGet, "/api/v1/tags", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type sseReader struct {
	scanner *bufio.Scanner
}

func (s *sseReader) next(t *testing.T) (string, domain.FeedbackEvent) {
	t.Helper()
	var kind string
	var ev domain.FeedbackEvent
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if kind != "" {
				return kind, ev
			}
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		}
	}
	t.Fatalf("поток закрыт: %v", s.scanner.Err())
	return "", ev
}

func TestStreamDeliversTransitions(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/feedback/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := &sseReader{scanner: bufio.NewScanner(resp.Body)}
	kind, _ := r.next(t)
	require.Equal(t, "hide", kind)
	require.Equal(t, 1, e.hub.Len())

	post, err := http.Post(srv.URL+"/feedback", "application/json", strings.NewReader(`{"message":"えらい"}`))
	require.NoError(t, err)
	_ = post.Body.Close()

	kind, ev := r.next(t)
	require.Equal(t, "show", kind)
	require.Equal(t, "えらい", ev.Message.Text)

	e.timers.Advance(10 * time.Second)
	kind, ev = r.next(t)
	require.Equal(t, "hide", kind)
	require.Equal(t, "えらい", ev.Message.Text)

	e.handler.Close()
	require.Eventually(t, func() bool { return e.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamSendsCurrentOnConnect(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Set("already", "")
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/feedback/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	kind, ev := (&sseReader{scanner: bufio.NewScanner(resp.Body)}).next(t)
	require.Equal(t, "show", kind)
	require.Equal(t, "already", ev.Message.Text)
	e.handler.Close()
}

// setOnSubscribe устанавливает сообщение сразу после подписки, до снимка состояния.
type setOnSubscribe struct {
	*fanout.Hub
	store *feedback.Store
}

func (b *setOnSubscribe) Subscribe(id string, ch chan<- domain.FeedbackEvent) error {
	if err := b.Hub.Subscribe(id, ch); err != nil {
		return err
	}
	b.store.Set("X", "")
	return nil
}

func TestStreamDoesNotRepeatSnapshotMessage(t *testing.T) {
	hub := fanout.NewHub(zerolog.Nop())
	defer hub.Close()
	store := feedback.NewStore(timer.NewManual(timer.Disabled), time.Second, hub)
	h := New(Config{DefaultMessage: defaultMessage, PingInterval: time.Hour},
		ingress.NewSink(store, nil, 0, zerolog.Nop()), store, &setOnSubscribe{Hub: hub, store: store}, nil, zerolog.Nop())
	defer h.Close()
	r := chi.NewRouter()
	h.Mount(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/feedback/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	sse := &sseReader{scanner: bufio.NewScanner(resp.Body)}

	kind, first := sse.next(t)
	require.Equal(t, "show", kind)
	require.Equal(t, "X", first.Message.Text)

	require.True(t, store.Clear())
	kind, second := sse.next(t)
	require.Equal(t, "hide", kind)
	require.Equal(t, first.Message.ID, second.Message.ID)
}

func TestStreamUnavailableAfterHubClosed(t *testing.T) {
	e := newEnv(t, nil)
	e.hub.Close()

	rec := e.do(http.MethodGet, "/feedback/stream", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPushDisabled(t *testing.T) {
	hub := fanout.NewHub(zerolog.Nop())
	defer hub.Close()
	store := feedback.NewStore(timer.NewManual(timer.Disabled), time.Second, hub)
	h := New(Config{DefaultMessage: defaultMessage, DisablePush: true}, ingress.NewSink(store, nil, 0, zerolog.Nop()), store, hub, nil, zerolog.Nop())
	r := chi.NewRouter()
	h.Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`{"message":"x"}`)))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	_, ok := store.Current()
	require.False(t, ok)
}
