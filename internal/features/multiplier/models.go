// Package multiplier вычисляет суммарный бонус-множитель канала.
// Независимые источники (счастливый час, населённость, праздник,
// плановые и админские события) проверяются заново при каждом запросе,
// активные факторы ПЕРЕМНОЖАЮТСЯ, не складываются.
package multiplier

import "time"

// Event — событие с множителем и сроком действия.
// Создаётся планировщиком или админской директивой.
type Event struct {
	Name   string
	Factor float64
	Hidden bool // фактор применяется, но в выводе не показывается
	EndsAt time.Time
}

// Active — активный источник на момент запроса.
type Active struct {
	Source string
	Factor float64
	Hidden bool
}

// Имена встроенных источников
const (
	SourceHappyHour = "happy_hour"
	SourceCrowd     = "crowd"
	SourceHoliday   = "holiday"
)
