package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrTagNotFound возвращается, когда метка не зарегистрирована.
	ErrTagNotFound = errors.New("tag not found")

	// ErrTagExists возвращается при повторной регистрации метки.
	ErrTagExists = errors.New("tag already registered")

	// ErrInvalidTag возвращается для метки с неверным префиксом, длиной или алфавитом.
	ErrInvalidTag = errors.New("invalid tag id")
)

// Допустимые префиксы и длины RFID-меток (E218/E280).
var (
	TagPrefixes     = []string{"E218", "E280"}
	ValidTagLengths = []int{22, 23}
)

// Tag описывает зарегистрированную RFID-метку косметики.
type Tag struct {
	TagID     string    `json:"tag_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageEventType описывает тип события использования.
type UsageEventType string

const (
	UsageAbsentStart   UsageEventType = "absent_start"
	UsagePresentReturn UsageEventType = "present_return"
	UsageLipTrigger    UsageEventType = "lip_trigger"
)

// Valid сообщает, известен ли тип события.
func (t UsageEventType) Valid() bool {
	switch t {
	case UsageAbsentStart, UsagePresentReturn, UsageLipTrigger:
		return true
	default:
		return false
	}
}

// UsageEvent: событие использования метки, присланное считывателем.
type UsageEvent struct {
	ID          int64          `json:"id"`
	TagID       string         `json:"tag_id"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	EventType   UsageEventType `json:"event_type"`
	OccurredAt  time.Time      `json:"timestamp"`
	DurationSec *int64         `json:"duration_sec,omitempty"`
}

// NormalizeTag приводит идентификатор к верхнему регистру и оставляет только буквы и цифры.
func NormalizeTag(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// IsValidTag проверяет префикс, длину и шестнадцатеричный алфавит нормализованной метки.
func IsValidTag(tag string) bool {
	if tag == "" {
		return false
	}
	prefixOK := false
	for _, p := range TagPrefixes {
		if strings.HasPrefix(tag, p) {
			prefixOK = true
			break
		}
	}
	if !prefixOK {
		return false
	}
	lengthOK := false
	for _, l := range ValidTagLengths {
		if len(tag) == l {
			lengthOK = true
			break
		}
	}
	if !lengthOK {
		return false
	}
	for _, r := range tag {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
