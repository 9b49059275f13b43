// Package events описывает входящие события от чат-транспорта и
// исходящий интерфейс уведомлений. Сам транспорт (подключение к серверу
// канала, разбор команд, PM) живёт снаружи ядра — сюда приходят уже
// разобранные события.
package events

import "time"

// ChatMessage — сообщение в чате канала.
type ChatMessage struct {
	Username  string
	Channel   string
	Text      string
	Timestamp time.Time
}

// MediaChange — смена текущего медиа в канале.
type MediaChange struct {
	Channel   string
	MediaID   string
	Title     string
	Duration  time.Duration
	Users     []string // кто был в канале на момент старта
	Timestamp time.Time
}

// Presence — вход или выход пользователя из канала.
type Presence struct {
	Username  string
	Channel   string
	Joined    bool // true — вошёл, false — вышел
	Timestamp time.Time
}

// DirectiveKind — тип админ-директивы.
type DirectiveKind string

const (
	DirectiveGrant      DirectiveKind = "grant"
	DirectiveDeduct     DirectiveKind = "deduct"
	DirectiveSetBalance DirectiveKind = "setbalance"
	DirectiveBan        DirectiveKind = "ban"
	DirectiveUnban      DirectiveKind = "unban"
	DirectiveStartEvent DirectiveKind = "startevent"
	DirectiveStopEvent  DirectiveKind = "stopevent"
)

// AdminDirective — команда администратора.
type AdminDirective struct {
	Admin    string
	Password string
	Channel  string
	Kind     DirectiveKind

	// Для grant/deduct/setbalance/ban/unban
	Target string
	Amount int64

	// Для startevent/stopevent
	EventName string
	Factor    float64
	Duration  time.Duration
	Hidden    bool // множитель действует, но не показывается
}

// Notifier отправляет ответы в канал или личным сообщением.
// Реализуется транспортом снаружи ядра; ядро вызывает его только
// ПОСЛЕ того, как финансовая операция зафиксирована.
type Notifier interface {
	SendChannel(channel, text string)
	SendPrivate(username, text string)
}
