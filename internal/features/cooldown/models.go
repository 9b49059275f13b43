// Package cooldown реализует общий лимитер с фиксированным окном.
// Одна строка на тройку (username, channel, trigger_id) хранит счётчик
// и начало окна. Лимитер переиспользуется и кулдаунами триггеров,
// и суточными лимитами азартных игр.
package cooldown

import "time"

// Window — состояние одного окна лимитера.
type Window struct {
	Username    string    `db:"username"`
	Channel     string    `db:"channel"`
	TriggerID   string    `db:"trigger_id"`
	Count       int       `db:"count"`
	WindowStart time.Time `db:"window_start"`
}

// Limit описывает ограничение: не более MaxCount срабатываний за Window.
// Окно фиксированное, не скользящее: по истечении Window счётчик
// сбрасывается в 1, и всплеск на границе окон — принятое поведение.
type Limit struct {
	MaxCount int
	Window   time.Duration
}
