// Package multiplier — service.go содержит движок стекинга множителей.
package multiplier

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/config"
)

// Service владеет активными событиями и вычисляет суммарный множитель.
// События хранятся в памяти: множитель — не финансовое состояние,
// потеря при рестарте допустима.
type Service struct {
	mu     sync.Mutex
	cfg    *config.Config
	loc    *time.Location
	events map[string]map[string]*Event // channel → name → event; канал "" действует везде
	now    func() time.Time
}

// NewService создаёт движок множителей.
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg:    cfg,
		loc:    cfg.Location(),
		events: make(map[string]map[string]*Event),
		now:    time.Now,
	}
}

// UpdateConfig применяет новую конфигурацию.
// Старый конфиг остаётся у операций, которые уже его захватили.
func (s *Service) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.loc = cfg.Location()
}

// StartEvent запускает событие с множителем.
// factor ∈ (1.0, 10.0], duration ∈ [1, 1440] минут.
func (s *Service) StartEvent(channel, name string, factor float64, duration time.Duration, hidden bool) error {
	if factor <= 1.0 || factor > 10.0 {
		return common.ErrBadMultiplier
	}
	if duration < time.Minute || duration > 1440*time.Minute {
		return common.ErrBadDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events[channel] == nil {
		s.events[channel] = make(map[string]*Event)
	}
	s.events[channel][name] = &Event{
		Name:   name,
		Factor: factor,
		Hidden: hidden,
		EndsAt: s.now().Add(duration),
	}

	log.WithFields(log.Fields{
		"channel": channel,
		"event":   name,
		"factor":  factor,
	}).Info("Событие-множитель запущено")
	return nil
}

// StopEvent досрочно останавливает событие. Возвращает false, если его нет.
func (s *Service) StopEvent(channel, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	evs, ok := s.events[channel]
	if !ok {
		return false
	}
	if _, ok := evs[name]; !ok {
		return false
	}
	delete(evs, name)
	return true
}

// Combined возвращает произведение всех активных факторов канала
// и список активных источников. Истёкшие события удаляются прямо
// при чтении (ленивая очистка).
func (s *Service) Combined(channel string, population int) (float64, []Active) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cfg := s.cfg

	factor := 1.0
	var active []Active

	apply := func(a Active) {
		factor *= a.Factor
		active = append(active, a)
	}

	// Счастливый час: окно по часам, может переходить через полночь
	if inHourWindow(now.In(s.loc).Hour(), cfg.HappyHourStart, cfg.HappyHourEnd) {
		apply(Active{Source: SourceHappyHour, Factor: cfg.HappyHourFactor})
	}

	// Населённость канала
	if cfg.CrowdThreshold > 0 && population >= cfg.CrowdThreshold {
		apply(Active{Source: SourceCrowd, Factor: cfg.CrowdFactor})
	}

	// Праздники по календарной дате
	today := now.In(s.loc).Format("01-02")
	for _, h := range cfg.Holidays {
		if h == today {
			apply(Active{Source: SourceHoliday, Factor: cfg.HolidayFactor})
			break
		}
	}

	// События: канальные и глобальные ("")
	for _, scope := range []string{channel, ""} {
		if scope == "" && channel == "" {
			continue
		}
		for name, ev := range s.events[scope] {
			if now.After(ev.EndsAt) {
				delete(s.events[scope], name)
				continue
			}
			apply(Active{Source: ev.Name, Factor: ev.Factor, Hidden: ev.Hidden})
		}
	}

	return factor, active
}

// Factor возвращает только суммарный множитель канала.
func (s *Service) Factor(channel string, population int) float64 {
	f, _ := s.Combined(channel, population)
	return f
}

// DisplayText возвращает строку для показа активных множителей.
// Скрытые источники применяются, но не показываются.
func (s *Service) DisplayText(channel string, population int) string {
	factor, active := s.Combined(channel, population)

	var visible []string
	for _, a := range active {
		if !a.Hidden {
			visible = append(visible, fmt.Sprintf("%s ×%.2g", a.Source, a.Factor))
		}
	}
	if len(visible) == 0 {
		return "✨ Бонусов сейчас нет"
	}
	return fmt.Sprintf("✨ Бонусы: %s (итого ×%.2f)", strings.Join(visible, ", "), factor)
}

// inHourWindow проверяет попадание часа в [start, end).
// start > end означает окно через полночь (например 22..3).
func inHourWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
