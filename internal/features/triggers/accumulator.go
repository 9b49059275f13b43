// Package triggers — accumulator.go копит дробные награды.
// Валюта движется только целыми числами: целая часть начисляется сразу,
// остаток хранится на тройку (username, channel, trigger) и переносится
// на следующие события. В долгой перспективе выплата сходится к
// настроенной ставке без движения дробных пленок.
package triggers

import (
	"math"
	"sync"
)

// Accumulator — in-memory хранилище дробных остатков.
// Состояние принадлежит сервису триггеров, не глобальное.
// Потеря при рестарте стоит меньше одной пленки на тройку.
type Accumulator struct {
	mu  sync.Mutex
	acc map[string]float64
}

// NewAccumulator создаёт пустой аккумулятор.
func NewAccumulator() *Accumulator {
	return &Accumulator{acc: make(map[string]float64)}
}

func accKey(username, channel, triggerID string) string {
	return username + "\x00" + channel + "\x00" + triggerID
}

// Add прибавляет value к остатку и возвращает целую часть к начислению.
// Остаток после вызова всегда в [0, 1).
func (a *Accumulator) Add(username, channel, triggerID string, value float64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := accKey(username, channel, triggerID)
	a.acc[key] += value
	whole := math.Floor(a.acc[key])
	a.acc[key] -= whole
	return int64(whole)
}

// Pending возвращает текущий дробный остаток (для тестов и диагностики).
func (a *Accumulator) Pending(username, channel, triggerID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acc[accKey(username, channel, triggerID)]
}
