package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"feedback-relay/internal/domain"
)

// stream отдаёт переходы хранилища как Server-Sent Events.
// Сразу после подключения отправляется текущее состояние.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// у потока нет дедлайна записи, в отличие от остальных маршрутов
	_ = rc.SetWriteDeadline(time.Time{})

	id := "sse-" + uuid.NewString()
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		id = "sse-" + reqID
	}
	events := make(chan domain.FeedbackEvent, h.cfg.StreamBuffer)
	if err := h.hub.Subscribe(id, events); err != nil {
		h.log.Warn().Err(err).Msg("httpapi: поток недоступен")
		writeError(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	defer func() { _ = h.hub.Unsubscribe(id) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// подписка оформлена до снимка, поэтому показ из снимка может уже лежать в очереди
	var skipID string
	initial := domain.FeedbackEvent{Kind: domain.EventHide, At: time.Now()}
	if msg, ok := h.store.Current(); ok {
		initial = domain.FeedbackEvent{Kind: domain.EventShow, Message: msg, At: msg.ReceivedAt}
		skipID = msg.ID
	}
	if err := writeEvent(w, initial); err != nil || rc.Flush() != nil {
		return
	}
	h.log.Debug().Str("subscriber", id).Msg("httpapi: дисплей подключён")

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case ev := <-events:
			if skipID != "" && ev.Kind == domain.EventShow && ev.Message.ID == skipID {
				skipID = ""
				continue
			}
			err = writeEvent(w, ev)
		case <-ping.C:
			_, err = io.WriteString(w, ": ping\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			h.log.Debug().Err(err).Str("subscriber", id).Msg("httpapi: дисплей отключился")
			return
		}
	}
}

func writeEvent(w io.Writer, ev domain.FeedbackEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.Message.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.Message.ID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
