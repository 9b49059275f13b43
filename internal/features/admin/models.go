// Package admin — аутентификация администраторов и исполнение директив.
// models.go описывает сессии и учёт попыток входа.
package admin

import "time"

// Session — активная админ-сессия. Живёт в памяти: после рестарта
// администратор просто логинится заново.
type Session struct {
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Параметры защиты от перебора пароля
const (
	maxAttempts   = 3
	attemptWindow = time.Hour
	sessionTTL    = 24 * time.Hour
)
