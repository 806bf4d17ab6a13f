package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
	"feedback-relay/internal/usecase/ingress"
)

type feedbackView struct {
	Message   string     `json:"message"`
	Image     string     `json:"image"`
	ID        string     `json:"id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// receiveFeedback принимает push-событие. Отсутствующий текст заменяется значением по умолчанию.
func (h *Handler) receiveFeedback(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		metrics.IncSubmission(string(domain.SourcePush), "invalid")
		h.log.Warn().Err(err).Msg("httpapi: некорректное тело /feedback")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, image := ingress.Resolve(payload, h.cfg.DefaultMessage)
	h.sink.Submit(r.Context(), domain.SourcePush, text, image)
	writeJSON(w, map[string]string{"status": "received"})
}

func (h *Handler) currentFeedback(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.store.Current()
	if !ok {
		writeJSON(w, feedbackView{})
		return
	}
	view := feedbackView{Message: msg.Text, Image: msg.Image, ID: msg.ID}
	if !msg.ExpiresAt.IsZero() {
		view.ExpiresAt = &msg.ExpiresAt
	}
	writeJSON(w, view)
}

func (h *Handler) clearFeedback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"cleared": h.store.Clear()})
}

func (h *Handler) testFeedback(w http.ResponseWriter, r *http.Request) {
	h.sink.Submit(r.Context(), domain.SourceTest, h.cfg.TestMessage, h.cfg.TestImage)
	writeJSON(w, map[string]string{"status": "ok", "message": h.cfg.TestMessage})
}

var (
	errBodyTooLarge = errors.New("request body too large")
	errInvalidJSON  = errors.New("invalid json body")
)

// decodePayload читает тело с ограничением размера. Пустое тело считается объектом {}.
func decodePayload(w http.ResponseWriter, r *http.Request, limit int64) (domain.FeedbackPayload, error) {
	var payload domain.FeedbackPayload
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return payload, errBodyTooLarge
		}
		return payload, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, errInvalidJSON
	}
	return payload, nil
}
