// Package tags ведёт реестр RFID-меток и журнал событий использования.
package tags

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"feedback-relay/internal/domain"
)

// Статусы регистрации метки.
const (
	StatusRegistered        = "registered"
	StatusAlreadyRegistered = "already_registered"
)

// RegisterInput: данные регистрации метки.
type RegisterInput struct {
	TagID    string
	Name     string
	Category string
}

// UsageInput: данные события использования.
type UsageInput struct {
	TagID       string
	Name        string
	Category    string
	EventType   string
	DurationSec *int64
}

// Trigger задаёт сообщение, которое показывается по событию lip_trigger.
type Trigger struct {
	Sink  domain.FeedbackSink
	Text  string
	Image string
}

// Service реализует сценарии реестра меток.
type Service struct {
	tags    domain.TagRepo
	usage   domain.UsageEventRepo
	trigger *Trigger
	now     func() time.Time
	log     zerolog.Logger
}

// NewService создаёт сервис. trigger может быть nil.
func NewService(tags domain.TagRepo, usage domain.UsageEventRepo, trigger *Trigger, log zerolog.Logger) *Service {
	return &Service{tags: tags, usage: usage, trigger: trigger, now: time.Now, log: log}
}

// Register регистрирует метку. Повторная регистрация не считается ошибкой.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	tagID := domain.NormalizeTag(in.TagID)
	name := strings.TrimSpace(in.Name)
	category := strings.TrimSpace(in.Category)

	if tagID == "" || name == "" || category == "" {
		return "", newError(ErrorInvalidInput, "tag_id, name and category are required", nil)
	}
	if hasSpace(name) || hasSpace(category) {
		return "", newError(ErrorInvalidInput, "fields must not contain whitespace", nil)
	}
	if !domain.IsValidTag(tagID) {
		return "", newError(ErrorInvalidInput, "invalid tag_id", domain.ErrInvalidTag)
	}

	err := s.tags.CreateTag(ctx, domain.Tag{TagID: tagID, Name: name, Category: category, CreatedAt: s.now().UTC()})
	switch {
	case err == nil:
		s.log.Info().Str("tag_id", tagID).Msg("tags: метка зарегистрирована")
		return StatusRegistered, nil
	case errors.Is(err, domain.ErrTagExists):
		return StatusAlreadyRegistered, nil
	default:
		return "", newError(ErrorInternal, "create tag", err)
	}
}

// List возвращает метки, новые первыми.
func (s *Service) List(ctx context.Context) ([]domain.Tag, error) {
	tags, err := s.tags.ListTags(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "list tags", err)
	}
	return tags, nil
}

// Get возвращает метку по идентификатору в любом написании.
func (s *Service) Get(ctx context.Context, rawID string) (domain.Tag, error) {
	tagID := domain.NormalizeTag(rawID)
	if tagID == "" {
		return domain.Tag{}, newError(ErrorInvalidInput, "tag_id is required", nil)
	}
	tag, err := s.tags.GetTag(ctx, tagID)
	switch {
	case err == nil:
		return tag, nil
	case errors.Is(err, domain.ErrTagNotFound):
		return domain.Tag{}, newError(ErrorNotFound, "tag not found", err)
	default:
		return domain.Tag{}, newError(ErrorInternal, "get tag", err)
	}
}

// Delete удаляет метку.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	tagID := domain.NormalizeTag(rawID)
	if tagID == "" {
		return newError(ErrorInvalidInput, "tag_id is required", nil)
	}
	err := s.tags.DeleteTag(ctx, tagID)
	switch {
	case err == nil:
		s.log.Info().Str("tag_id", tagID).Msg("tags: метка удалена")
		return nil
	case errors.Is(err, domain.ErrTagNotFound):
		return newError(ErrorNotFound, "tag not found", err)
	default:
		return newError(ErrorInternal, "delete tag", err)
	}
}

// RecordUsage сохраняет событие использования и при необходимости показывает похвалу.
func (s *Service) RecordUsage(ctx context.Context, in UsageInput) (domain.UsageEvent, error) {
	tagID := domain.NormalizeTag(in.TagID)
	name := strings.TrimSpace(in.Name)
	category := strings.TrimSpace(in.Category)
	eventType := domain.UsageEventType(strings.TrimSpace(in.EventType))

	if tagID == "" || name == "" || category == "" || eventType == "" {
		return domain.UsageEvent{}, newError(ErrorInvalidInput, "tag_id, name, category and event_type are required", nil)
	}
	if !domain.IsValidTag(tagID) {
		return domain.UsageEvent{}, newError(ErrorInvalidInput, "invalid tag_id", domain.ErrInvalidTag)
	}
	if !eventType.Valid() {
		return domain.UsageEvent{}, newError(ErrorInvalidInput, "invalid event_type", nil)
	}
	if in.DurationSec != nil && *in.DurationSec < 0 {
		return domain.UsageEvent{}, newError(ErrorInvalidInput, "duration_sec must not be negative", nil)
	}

	saved, err := s.usage.SaveUsageEvent(ctx, domain.UsageEvent{
		TagID:       tagID,
		Name:        name,
		Category:    category,
		EventType:   eventType,
		OccurredAt:  s.now().UTC(),
		DurationSec: in.DurationSec,
	})
	if err != nil {
		return domain.UsageEvent{}, newError(ErrorInternal, "save usage event", err)
	}

	if eventType == domain.UsageLipTrigger && s.trigger != nil && s.trigger.Sink != nil {
		s.trigger.Sink.Submit(ctx, domain.SourceUsage, s.trigger.Text, s.trigger.Image)
	}
	return saved, nil
}

func hasSpace(v string) bool {
	return strings.IndexFunc(v, unicode.IsSpace) >= 0
}
