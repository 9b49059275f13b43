// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/events"
)

// LogMessage логирует входящее сообщение.
// Записывает: username, канал, текст (первые 50 символов).
func LogMessage(msg events.ChatMessage) {
	text := msg.Text
	if len(text) > 50 {
		text = text[:50] + "..."
	}

	log.WithFields(log.Fields{
		"username": msg.Username,
		"channel":  msg.Channel,
		"text":     text,
	}).Debug("Входящее сообщение")
}
