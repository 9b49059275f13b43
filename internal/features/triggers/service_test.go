package triggers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/events"
	"serotonyl.ru/cinema-bot/internal/features/channelstate"
	"serotonyl.ru/cinema-bot/internal/features/cooldown"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// --- фейки ---

type creditCall struct {
	entry ledger.Entry
}

type fakeLedger struct {
	mu      sync.Mutex
	credits []creditCall
	banned  map[string]bool
}

func (f *fakeLedger) Credit(_ context.Context, e ledger.Entry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, creditCall{entry: e})
	return e.Amount, nil
}

func (f *fakeLedger) IsBanned(_ context.Context, username, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[username], nil
}

type fakeLimiter struct {
	mu     sync.Mutex
	denied map[string]bool // trigger_id → запрет
	calls  []string        // ключи лимитера по порядку
}

func (f *fakeLimiter) Allow(_ context.Context, _, _, triggerID string, _ cooldown.Limit) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, triggerID)
	return !f.denied[triggerID], nil
}

type fakeFactors struct{ factor float64 }

func (f fakeFactors) Factor(string, int) float64 { return f.factor }

func triggerConfig() *config.Config {
	return &config.Config{
		TriggerMessageReward:        1, // целая награда: проще считать
		TriggerMessageHourlyCap:     60,
		TriggerLongMessageMinLen:    30,
		TriggerLongMessageReward:    2,
		TriggerLongMessageHourlyCap: 30,
		TriggerLaughReward:          1,
		TriggerKudosReward:          5,
		TriggerMentionReward:        1,
		TriggerMediaCommentReward:   2,
		TriggerMediaCommentCap:      3,
	}
}

func newTestPipeline(cfg *config.Config) (*Service, *fakeLedger, *fakeLimiter, *channelstate.Manager) {
	fl := &fakeLedger{banned: make(map[string]bool)}
	lim := &fakeLimiter{denied: make(map[string]bool)}
	state := channelstate.NewManager()
	s := NewService(cfg, fl, lim, fakeFactors{factor: 1.0}, state)
	return s, fl, lim, state
}

func msg(username, text string) events.ChatMessage {
	return events.ChatMessage{
		Username:  username,
		Channel:   "cinema",
		Text:      text,
		Timestamp: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

// --- тесты ---

func TestEvaluateBaseMessageAward(t *testing.T) {
	s, fl, _, _ := newTestPipeline(triggerConfig())

	awards := s.Evaluate(context.Background(), msg("vasya", "привет"))

	require.Len(t, awards, 1)
	assert.Equal(t, "message", awards[0].TriggerID)
	assert.Equal(t, "vasya", awards[0].Username)
	assert.Equal(t, int64(1), awards[0].Amount)

	require.Len(t, fl.credits, 1)
	assert.Equal(t, ledger.TxTypeTrigger, fl.credits[0].entry.Type)
	assert.Equal(t, "message", fl.credits[0].entry.TriggerID)
}

func TestEvaluateLongMessageBothTriggersFire(t *testing.T) {
	s, fl, _, _ := newTestPipeline(triggerConfig())

	long := strings.Repeat("о", 40)
	awards := s.Evaluate(context.Background(), msg("vasya", long))

	// message + longmessage: триггеры независимы
	require.Len(t, awards, 2)
	assert.Len(t, fl.credits, 2)
}

func TestEvaluateFractionalAccumulation(t *testing.T) {
	cfg := triggerConfig()
	cfg.TriggerMessageReward = 0.5
	s, fl, lim, _ := newTestPipeline(cfg)
	ctx := context.Background()

	// Первое сообщение: остаток 0.5, начислять нечего, кулдаун не трогаем
	awards := s.Evaluate(ctx, msg("vasya", "раз"))
	assert.Empty(t, awards)
	assert.Empty(t, fl.credits)
	assert.Empty(t, lim.calls)

	// Второе: целая единица, кулдаун потреблён, начислено
	awards = s.Evaluate(ctx, msg("vasya", "два"))
	require.Len(t, awards, 1)
	assert.Equal(t, int64(1), awards[0].Amount)
	assert.Len(t, lim.calls, 1)
}

func TestEvaluateMultiplierScalesReward(t *testing.T) {
	fl := &fakeLedger{banned: make(map[string]bool)}
	lim := &fakeLimiter{denied: make(map[string]bool)}
	s := NewService(triggerConfig(), fl, lim, fakeFactors{factor: 2.0}, channelstate.NewManager())

	awards := s.Evaluate(context.Background(), msg("vasya", "привет"))
	require.Len(t, awards, 1)
	// 1 × 2.0 = 2
	assert.Equal(t, int64(2), awards[0].Amount)
}

func TestEvaluateLaughRewardsPreviousSpeaker(t *testing.T) {
	s, fl, _, _ := newTestPipeline(triggerConfig())
	ctx := context.Background()

	s.Evaluate(ctx, msg("petya", "смешная шутка про кино"))
	awards := s.Evaluate(ctx, msg("vasya", "ахахах"))

	var laugh *Award
	for i := range awards {
		if awards[i].TriggerID == "laugh" {
			laugh = &awards[i]
		}
	}
	require.NotNil(t, laugh)
	// Смех награждает предыдущего оратора, не смеющегося
	assert.Equal(t, "petya", laugh.Username)

	found := false
	for _, c := range fl.credits {
		if c.entry.TriggerID == "laugh" {
			assert.Equal(t, "petya", c.entry.Username)
			assert.Equal(t, "vasya", c.entry.RelatedUser)
			found = true
		}
	}
	assert.True(t, found)
}

func TestEvaluateLaughAtOwnMessageBlocked(t *testing.T) {
	s, _, _, _ := newTestPipeline(triggerConfig())
	ctx := context.Background()

	s.Evaluate(ctx, msg("vasya", "моя шутка"))
	awards := s.Evaluate(ctx, msg("vasya", "ахахах"))

	for _, a := range awards {
		if a.TriggerID == "laugh" {
			assert.Equal(t, BlockedSelf, a.Blocked)
		}
	}
}

func TestEvaluateKudosRewardsTarget(t *testing.T) {
	s, fl, lim, _ := newTestPipeline(triggerConfig())

	awards := s.Evaluate(context.Background(), msg("vasya", "спасибо @petya"))

	var kudos *Award
	for i := range awards {
		if awards[i].TriggerID == "kudos" {
			kudos = &awards[i]
		}
	}
	require.NotNil(t, kudos)
	assert.Equal(t, "petya", kudos.Username)
	assert.Equal(t, int64(5), kudos.Amount)

	// Парный лимит: ключ содержит обе стороны
	pairSeen := false
	for _, k := range lim.calls {
		if k == "kudos.vasya.petya" {
			pairSeen = true
		}
	}
	assert.True(t, pairSeen)

	for _, c := range fl.credits {
		if c.entry.TriggerID == "kudos" {
			assert.Equal(t, "vasya", c.entry.RelatedUser)
		}
	}
}

func TestEvaluateKudosToSelfBlocked(t *testing.T) {
	s, fl, _, _ := newTestPipeline(triggerConfig())

	awards := s.Evaluate(context.Background(), msg("vasya", "спасибо @vasya"))

	for _, a := range awards {
		if a.TriggerID == "kudos" {
			assert.Equal(t, BlockedSelf, a.Blocked)
		}
	}
	for _, c := range fl.credits {
		assert.NotEqual(t, "kudos", c.entry.TriggerID)
	}
}

func TestEvaluateCooldownBlocksOnlyThatTrigger(t *testing.T) {
	s, fl, lim, _ := newTestPipeline(triggerConfig())
	lim.denied["message"] = true

	long := strings.Repeat("о", 40)
	awards := s.Evaluate(context.Background(), msg("vasya", long))

	var blocked, granted bool
	for _, a := range awards {
		switch a.TriggerID {
		case "message":
			assert.Equal(t, BlockedCooldown, a.Blocked)
			blocked = true
		case "longmessage":
			assert.Empty(t, a.Blocked)
			granted = true
		}
	}
	assert.True(t, blocked)
	assert.True(t, granted)
	require.Len(t, fl.credits, 1)
	assert.Equal(t, "longmessage", fl.credits[0].entry.TriggerID)
}

func TestEvaluateIgnoredAndBanned(t *testing.T) {
	cfg := triggerConfig()
	cfg.IgnoredUsers = []string{"spambot"}
	s, fl, _, _ := newTestPipeline(cfg)
	ctx := context.Background()

	assert.Empty(t, s.Evaluate(ctx, msg("spambot", "привет")))

	fl.banned["vasya"] = true
	assert.Empty(t, s.Evaluate(ctx, msg("vasya", "привет")))
	assert.Empty(t, fl.credits)
}

func TestEvaluateIgnoredBeneficiaryBlocked(t *testing.T) {
	cfg := triggerConfig()
	cfg.IgnoredUsers = []string{"spambot"}
	s, fl, _, _ := newTestPipeline(cfg)

	// Благодарность игнорируемому не начисляется
	awards := s.Evaluate(context.Background(), msg("vasya", "спасибо @spambot"))
	for _, a := range awards {
		if a.TriggerID == "kudos" {
			assert.Equal(t, BlockedIgnored, a.Blocked)
		}
	}
	for _, c := range fl.credits {
		assert.NotEqual(t, "kudos", c.entry.TriggerID)
	}
}

func TestEvaluateMediaCommentCap(t *testing.T) {
	s, _, _, state := newTestPipeline(triggerConfig())
	ctx := context.Background()

	state.OnMediaChange("cinema", channelstate.Media{ID: "m1", Title: "Фильм"})

	// Лимит 3 награды на медиа
	for i := 0; i < 3; i++ {
		awards := s.Evaluate(ctx, msg("vasya", "отличная сцена"))
		for _, a := range awards {
			if a.TriggerID == "mediacomment" {
				assert.Empty(t, a.Blocked, "попытка %d", i)
			}
		}
	}

	awards := s.Evaluate(ctx, msg("vasya", "и ещё комментарий"))
	var capped bool
	for _, a := range awards {
		if a.TriggerID == "mediacomment" {
			assert.Equal(t, BlockedMediaCap, a.Blocked)
			capped = true
		}
	}
	assert.True(t, capped)

	// Смена медиа сбрасывает счётчик
	state.OnMediaChange("cinema", channelstate.Media{ID: "m2", Title: "Другой"})
	awards = s.Evaluate(ctx, msg("vasya", "снова комментирую"))
	for _, a := range awards {
		if a.TriggerID == "mediacomment" {
			assert.Empty(t, a.Blocked)
		}
	}
}

func TestEvaluateMediaCommentWithoutMedia(t *testing.T) {
	s, fl, _, _ := newTestPipeline(triggerConfig())

	s.Evaluate(context.Background(), msg("vasya", "комментарий в пустоту"))
	for _, c := range fl.credits {
		assert.NotEqual(t, "mediacomment", c.entry.TriggerID)
	}
}

func TestUnknownKindNeverAwards(t *testing.T) {
	s, fl, _, state := newTestPipeline(triggerConfig())
	_ = state

	// Подсовываем правило с нераспознанным видом
	s.mu.Lock()
	s.set = []Trigger{{ID: "mystery", Kind: Kind(99), Enabled: true, Reward: 100}}
	s.mu.Unlock()

	awards := s.Evaluate(context.Background(), msg("vasya", "привет"))
	assert.Empty(t, awards)
	assert.Empty(t, fl.credits)
}

func TestUpdateConfigSwapsRules(t *testing.T) {
	cfg := triggerConfig()
	s, fl, _, _ := newTestPipeline(cfg)
	ctx := context.Background()

	awards := s.Evaluate(ctx, msg("vasya", "привет"))
	require.Len(t, awards, 1)

	// Отключаем награду за сообщения
	cfg2 := triggerConfig()
	cfg2.TriggerMessageReward = 0
	s.UpdateConfig(cfg2)

	awards = s.Evaluate(ctx, msg("vasya", "ещё привет"))
	assert.Empty(t, awards)
	assert.Len(t, fl.credits, 1)
}
