package gambling

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/features/cooldown"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// --- фейки ---

type fakeLedger struct {
	mu       sync.Mutex
	accounts map[string]*ledger.Account
	journal  []ledger.Entry // записи RecordWager/CreditPayout/RefundWager
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: make(map[string]*ledger.Account)}
}

func key(username, channel string) string { return username + "\x00" + channel }

func (f *fakeLedger) addAccount(username, channel string, balance int64, createdAt time.Time) {
	f.accounts[key(username, channel)] = &ledger.Account{
		Username: username, Channel: channel, Balance: balance, CreatedAt: createdAt,
	}
}

func (f *fakeLedger) balance(username, channel string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[key(username, channel)].Balance
}

func (f *fakeLedger) GetAccount(_ context.Context, username, channel string) (*ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[key(username, channel)]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeLedger) AtomicDebit(_ context.Context, username, channel string, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[key(username, channel)]
	if !ok || acc.Balance < amount {
		return false, nil
	}
	acc.Balance -= amount
	return true, nil
}

func (f *fakeLedger) RecordWager(_ context.Context, e ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journal = append(f.journal, e)
	return nil
}

func (f *fakeLedger) CreditPayout(_ context.Context, e ledger.Entry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.accounts[key(e.Username, e.Channel)]
	acc.Balance += e.Amount
	f.journal = append(f.journal, e)
	return acc.Balance, nil
}

func (f *fakeLedger) RefundWager(_ context.Context, e ledger.Entry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.accounts[key(e.Username, e.Channel)]
	acc.Balance += e.Amount
	f.journal = append(f.journal, e)
	return acc.Balance, nil
}

type gameRecord struct {
	username, game string
	net            int64
}

type fakeStore struct {
	mu         sync.Mutex
	games      []gameRecord
	challenges map[int64]*Challenge
	nextID     int64
	daily      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{challenges: make(map[int64]*Challenge), nextID: 1}
}

func (f *fakeStore) RecordGame(_ context.Context, username, _ string, game string, net int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, gameRecord{username, game, net})
	return nil
}

func (f *fakeStore) GetStats(_ context.Context, _, _ string) (*Stats, error) { return nil, nil }

func (f *fakeStore) CreateChallenge(_ context.Context, c *Challenge) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.challenges {
		if e.Status == ChallengePending && e.Challenger == c.Challenger &&
			e.Target == c.Target && e.Channel == c.Channel {
			return 0, common.ErrChallengePending
		}
	}
	id := f.nextID
	f.nextID++
	cp := *c
	cp.ID = id
	f.challenges[id] = &cp
	return id, nil
}

func (f *fakeStore) GetPending(_ context.Context, challenger, target, channel string) (*Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.challenges {
		if c.Status == ChallengePending && c.Challenger == challenger &&
			c.Target == target && c.Channel == channel {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrChallengeNotFound
}

func (f *fakeStore) HasPendingFrom(_ context.Context, challenger, channel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.challenges {
		if c.Status == ChallengePending && c.Challenger == challenger && c.Channel == channel {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ResolveChallenge(_ context.Context, id int64, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.challenges[id]
	if !ok || c.Status != ChallengePending {
		return false, nil
	}
	c.Status = status
	return true, nil
}

func (f *fakeStore) ExpireDue(_ context.Context, now time.Time) ([]*Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Challenge
	for _, c := range f.challenges {
		if c.Status == ChallengePending && !c.ExpiresAt.After(now) {
			c.Status = ChallengeExpired
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CountDailyGames(_ context.Context, _, _ string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.daily, nil
}

type fakeLimiter struct {
	deny  bool
	calls int // сколько раз кулдаун был потреблён
}

func (f *fakeLimiter) Allow(_ context.Context, _, _, _ string, _ cooldown.Limit) (bool, error) {
	f.calls++
	return !f.deny, nil
}

// fixedSource — rand.Source с постоянным значением: превращает
// s.draw() в известное число.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (s fixedSource) Seed(int64)   {}

func fixedRand(f float64) *rand.Rand {
	return rand.New(fixedSource{int64(f * (1 << 63))})
}

func testConfig() *config.Config {
	return &config.Config{
		GamblingEnabled:         true,
		GamblingMinWager:        10,
		GamblingMaxWager:        1000,
		GamblingMinAccountAge:   24 * time.Hour,
		GamblingCooldown:        30 * time.Second,
		GamblingDailyLimit:      50,
		FlipWinProbability:      0.45,
		DuelRakePercent:         5,
		DuelExpiry:              5 * time.Minute,
		HeistJoinWindow:         90 * time.Second,
		HeistMinParticipants:    3,
		HeistSuccessProbability: 0.4,
		HeistPayoutMultiplier:   2,
	}
}

func newTestService(t *testing.T) (*Service, *fakeLedger, *fakeStore, *fakeLimiter) {
	t.Helper()
	fl := newFakeLedger()
	fs := newFakeStore()
	lim := &fakeLimiter{}
	s := NewService(testConfig(), fl, fs, lim)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	return s, fl, fs, lim
}

func oldEnough() time.Time {
	return time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
}

// --- гейт ---

func TestValidateGate(t *testing.T) {
	ctx := context.Background()

	t.Run("движок отключён", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("vasya", "cinema", 500, oldEnough())
		cfg := testConfig()
		cfg.GamblingEnabled = false
		s.UpdateConfig(cfg)

		_, rej, err := s.PlaySlots(ctx, "vasya", "cinema", 50)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Contains(t, rej.Message, "отключены")
	})

	t.Run("счёта нет", func(t *testing.T) {
		s, _, _, _ := newTestService(t)
		_, rej, err := s.PlaySlots(ctx, "nobody", "cinema", 50)
		require.NoError(t, err)
		require.NotNil(t, rej)
	})

	t.Run("молодой счёт", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("fresh", "cinema", 500, s.now().Add(-time.Hour))
		_, rej, err := s.PlaySlots(ctx, "fresh", "cinema", 50)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Contains(t, rej.Message, "молодой")
	})

	t.Run("ставка вне диапазона", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("vasya", "cinema", 5000, oldEnough())
		for _, wager := range []int64{9, 1001} {
			_, rej, err := s.PlaySlots(ctx, "vasya", "cinema", wager)
			require.NoError(t, err)
			require.NotNil(t, rej, "wager=%d", wager)
		}
	})

	t.Run("не хватает на ставку", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("poor", "cinema", 30, oldEnough())
		_, rej, err := s.PlaySlots(ctx, "poor", "cinema", 100)
		require.NoError(t, err)
		require.NotNil(t, rej)
		// Отказ ничего не списал
		assert.Equal(t, int64(30), fl.balance("poor", "cinema"))
	})

	t.Run("дневной лимит", func(t *testing.T) {
		s, fl, fs, _ := newTestService(t)
		fl.addAccount("grinder", "cinema", 500, oldEnough())
		fs.daily = 50
		_, rej, err := s.PlaySlots(ctx, "grinder", "cinema", 50)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Contains(t, rej.Message, "лимит")
	})

	t.Run("кулдаун", func(t *testing.T) {
		s, fl, _, lim := newTestService(t)
		fl.addAccount("fast", "cinema", 500, oldEnough())
		lim.deny = true
		_, rej, err := s.PlaySlots(ctx, "fast", "cinema", 50)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Equal(t, int64(500), fl.balance("fast", "cinema"))
	})

	t.Run("забаненный счёт", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("banned", "cinema", 500, oldEnough())
		fl.accounts[key("banned", "cinema")].EconomyBanned = true
		_, rej, err := s.PlaySlots(ctx, "banned", "cinema", 50)
		require.NoError(t, err)
		require.NotNil(t, rej)
	})
}

// --- слоты ---

func TestPlaySlotsLoss(t *testing.T) {
	s, fl, fs, _ := newTestService(t)
	fl.addAccount("vasya", "cinema", 500, oldEnough())
	s.rng = fixedRand(0.99) // хвост таблицы по умолчанию: пусто

	out, rej, err := s.PlaySlots(context.Background(), "vasya", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, out)

	assert.Equal(t, OutcomeLoss, out.Kind)
	assert.Equal(t, int64(-100), out.Net)
	assert.Equal(t, int64(400), fl.balance("vasya", "cinema"))
	require.Len(t, fs.games, 1)
	assert.Equal(t, int64(-100), fs.games[0].net)
	// В журнале одна запись — ставка
	require.Len(t, fl.journal, 1)
	assert.Equal(t, ledger.TxTypeGambleWager, fl.journal[0].Type)
}

func TestPlaySlotsJackpot(t *testing.T) {
	s, fl, _, _ := newTestService(t)
	fl.addAccount("lucky", "cinema", 500, oldEnough())
	s.rng = fixedRand(0.0) // первая строка таблицы: три семёрки, ×50

	out, rej, err := s.PlaySlots(context.Background(), "lucky", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)

	assert.Equal(t, OutcomeJackpot, out.Kind)
	assert.True(t, out.Announce)
	assert.Equal(t, int64(5000), out.Payout)
	assert.Equal(t, int64(500-100+5000), fl.balance("lucky", "cinema"))
}

// --- монетка ---

func TestPlayFlip(t *testing.T) {
	ctx := context.Background()

	t.Run("выигрыш двойной ставки", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("vasya", "cinema", 500, oldEnough())
		s.rng = fixedRand(0.1) // < 0.45

		out, rej, err := s.PlayFlip(ctx, "vasya", "cinema", 100)
		require.NoError(t, err)
		require.Nil(t, rej)
		assert.Equal(t, OutcomeWin, out.Kind)
		assert.Equal(t, int64(200), out.Payout)
		assert.Equal(t, int64(600), fl.balance("vasya", "cinema"))
	})

	t.Run("проигрыш", func(t *testing.T) {
		s, fl, _, _ := newTestService(t)
		fl.addAccount("vasya", "cinema", 500, oldEnough())
		s.rng = fixedRand(0.9)

		out, rej, err := s.PlayFlip(ctx, "vasya", "cinema", 100)
		require.NoError(t, err)
		require.Nil(t, rej)
		assert.Equal(t, OutcomeLoss, out.Kind)
		assert.Equal(t, int64(400), fl.balance("vasya", "cinema"))
	})
}
