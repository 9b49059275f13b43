package multiplier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/config"
)

func multConfig() *config.Config {
	return &config.Config{
		AppTimezone:     "UTC",
		HappyHourStart:  20,
		HappyHourEnd:    23,
		HappyHourFactor: 1.5,
		CrowdThreshold:  20,
		CrowdFactor:     1.25,
		HolidayFactor:   2,
	}
}

// newTestMultiplier прибивает часы к будничному полудню:
// ни счастливый час, ни праздники не активны.
func newTestMultiplier(cfg *config.Config) *Service {
	s := NewService(cfg)
	s.now = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestFactorDefaultsToOne(t *testing.T) {
	s := newTestMultiplier(multConfig())
	assert.Equal(t, 1.0, s.Factor("cinema", 3))
}

func TestFactorsMultiplyNotAdd(t *testing.T) {
	s := newTestMultiplier(multConfig())

	require.NoError(t, s.StartEvent("cinema", "марафон", 2.0, time.Hour, false))
	require.NoError(t, s.StartEvent("cinema", "премьера", 1.5, time.Hour, false))

	// 2.0 × 1.5, а не 2.0 + 1.5
	assert.InDelta(t, 3.0, s.Factor("cinema", 3), 1e-9)
}

func TestHappyHourWindow(t *testing.T) {
	s := newTestMultiplier(multConfig())

	s.now = func() time.Time { return time.Date(2026, 8, 28, 21, 0, 0, 0, time.UTC) }
	assert.InDelta(t, 1.5, s.Factor("cinema", 3), 1e-9)

	// Конец окна не входит
	s.now = func() time.Time { return time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC) }
	assert.Equal(t, 1.0, s.Factor("cinema", 3))
}

func TestInHourWindowMidnightWrap(t *testing.T) {
	// Окно 22..3 переходит через полночь
	assert.True(t, inHourWindow(22, 22, 3))
	assert.True(t, inHourWindow(0, 22, 3))
	assert.True(t, inHourWindow(2, 22, 3))
	assert.False(t, inHourWindow(3, 22, 3))
	assert.False(t, inHourWindow(12, 22, 3))

	// Пустое окно никогда не активно
	assert.False(t, inHourWindow(5, 5, 5))
}

func TestCrowdThreshold(t *testing.T) {
	s := newTestMultiplier(multConfig())

	assert.Equal(t, 1.0, s.Factor("cinema", 19))
	assert.InDelta(t, 1.25, s.Factor("cinema", 20), 1e-9)
}

func TestHolidayByDate(t *testing.T) {
	cfg := multConfig()
	cfg.Holidays = []string{"01-01", "08-28"}
	s := newTestMultiplier(cfg)

	assert.InDelta(t, 2.0, s.Factor("cinema", 3), 1e-9)

	cfg.Holidays = []string{"01-01"}
	assert.Equal(t, 1.0, s.Factor("cinema", 3))
}

func TestStartEventValidation(t *testing.T) {
	s := newTestMultiplier(multConfig())

	assert.ErrorIs(t, s.StartEvent("cinema", "x", 1.0, time.Hour, false), common.ErrBadMultiplier)
	assert.ErrorIs(t, s.StartEvent("cinema", "x", 11.0, time.Hour, false), common.ErrBadMultiplier)
	assert.ErrorIs(t, s.StartEvent("cinema", "x", 2.0, 30*time.Second, false), common.ErrBadDuration)
	assert.ErrorIs(t, s.StartEvent("cinema", "x", 2.0, 25*time.Hour, false), common.ErrBadDuration)
	assert.NoError(t, s.StartEvent("cinema", "x", 2.0, time.Minute, false))
}

func TestEventLazyExpiry(t *testing.T) {
	s := newTestMultiplier(multConfig())
	require.NoError(t, s.StartEvent("cinema", "марафон", 2.0, time.Hour, false))
	assert.InDelta(t, 2.0, s.Factor("cinema", 3), 1e-9)

	base := s.now()
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	assert.Equal(t, 1.0, s.Factor("cinema", 3))
	// Истёкшее событие вычищено: повторный стоп его уже не находит
	assert.False(t, s.StopEvent("cinema", "марафон"))
}

func TestStopEvent(t *testing.T) {
	s := newTestMultiplier(multConfig())
	require.NoError(t, s.StartEvent("cinema", "марафон", 2.0, time.Hour, false))

	assert.True(t, s.StopEvent("cinema", "марафон"))
	assert.Equal(t, 1.0, s.Factor("cinema", 3))

	assert.False(t, s.StopEvent("cinema", "марафон"))
	assert.False(t, s.StopEvent("другой", "марафон"))
}

func TestGlobalEventAppliesEverywhere(t *testing.T) {
	s := newTestMultiplier(multConfig())
	require.NoError(t, s.StartEvent("", "глобальный", 3.0, time.Hour, false))

	assert.InDelta(t, 3.0, s.Factor("cinema", 3), 1e-9)
	assert.InDelta(t, 3.0, s.Factor("anime", 3), 1e-9)
}

func TestHiddenEventAppliedButNotShown(t *testing.T) {
	s := newTestMultiplier(multConfig())
	require.NoError(t, s.StartEvent("cinema", "сюрприз", 2.0, time.Hour, true))

	factor, active := s.Combined("cinema", 3)
	assert.InDelta(t, 2.0, factor, 1e-9)
	require.Len(t, active, 1)
	assert.True(t, active[0].Hidden)

	text := s.DisplayText("cinema", 3)
	assert.NotContains(t, text, "сюрприз")
	assert.Equal(t, "✨ Бонусов сейчас нет", text)
}

func TestDisplayTextListsVisibleSources(t *testing.T) {
	s := newTestMultiplier(multConfig())
	require.NoError(t, s.StartEvent("cinema", "марафон", 2.0, time.Hour, false))

	text := s.DisplayText("cinema", 3)
	assert.Contains(t, text, "марафон")
	assert.Contains(t, text, "×2")
}
