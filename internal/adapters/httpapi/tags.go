package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/usecase/tags"
)

type registerTagRequest struct {
	TagID    string `json:"tag_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type usageEventRequest struct {
	TagID       string `json:"tag_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	EventType   string `json:"event_type"`
	DurationSec *int64 `json:"duration_sec"`
}

func (h *Handler) registerTag(w http.ResponseWriter, r *http.Request) {
	var req registerTagRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	status, err := h.tags.Register(r.Context(), tags.RegisterInput{TagID: req.TagID, Name: req.Name, Category: req.Category})
	if err != nil {
		h.writeTagsError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": status})
}

func (h *Handler) listTags(w http.ResponseWriter, r *http.Request) {
	list, err := h.tags.List(r.Context())
	if err != nil {
		h.writeTagsError(w, err)
		return
	}
	if list == nil {
		list = []domain.Tag{}
	}
	writeJSON(w, list)
}

func (h *Handler) getTag(w http.ResponseWriter, r *http.Request) {
	tag, err := h.tags.Get(r.Context(), chi.URLParam(r, "tagID"))
	if err != nil {
		h.writeTagsError(w, err)
		return
	}
	writeJSON(w, tag)
}

func (h *Handler) deleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.tags.Delete(r.Context(), chi.URLParam(r, "tagID")); err != nil {
		h.writeTagsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) usageEvent(w http.ResponseWriter, r *http.Request) {
	var req usageEventRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	ev, err := h.tags.RecordUsage(r.Context(), tags.UsageInput{
		TagID:       req.TagID,
		Name:        req.Name,
		Category:    req.Category,
		EventType:   req.EventType,
		DurationSec: req.DurationSec,
	})
	if err != nil {
		h.writeTagsError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "id": ev.ID})
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeTagsError(w http.ResponseWriter, err error) {
	var ue *tags.Error
	if errors.As(err, &ue) {
		switch ue.Code {
		case tags.ErrorInvalidInput:
			writeError(w, http.StatusBadRequest, ue.Reason)
			return
		case tags.ErrorNotFound:
			writeError(w, http.StatusNotFound, ue.Reason)
			return
		}
	}
	h.log.Error().Err(err).Msg("httpapi: ошибка реестра меток")
	writeError(w, http.StatusInternalServerError, "internal server error")
}
