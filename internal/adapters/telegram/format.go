package telegram

import (
	"strings"

	"feedback-relay/internal/domain"
)

const (
	messageLimit = 4096
	captionLimit = 1024
)

// FormatShow собирает текст уведомления о показанном сообщении.
func FormatShow(msg domain.FeedbackMessage, limit int) string {
	text := strings.TrimSpace(msg.Text)
	if msg.Image != "" && !isRemoteImage(msg.Image) {
		text += "\n🖼 " + msg.Image
	}
	return truncate(text, limit)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}

func isRemoteImage(image string) bool {
	return strings.HasPrefix(image, "https://") || strings.HasPrefix(image, "http://")
}
