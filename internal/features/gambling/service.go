// Package gambling — service.go содержит общий валидационный гейт
// и одиночные игры: слоты и монетку.
package gambling

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/features/cooldown"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// Ledger — нужная играм часть леджера.
type Ledger interface {
	GetAccount(ctx context.Context, username, channel string) (*ledger.Account, error)
	AtomicDebit(ctx context.Context, username, channel string, amount int64) (bool, error)
	RecordWager(ctx context.Context, e ledger.Entry) error
	CreditPayout(ctx context.Context, e ledger.Entry) (int64, error)
	RefundWager(ctx context.Context, e ledger.Entry) (int64, error)
}

// Limiter — кулдаун между играми.
type Limiter interface {
	Allow(ctx context.Context, username, channel, triggerID string, limit cooldown.Limit) (bool, error)
}

// Store — персистентная часть движка: статистика и вызовы на дуэль.
type Store interface {
	RecordGame(ctx context.Context, username, channel, game string, net int64) error
	GetStats(ctx context.Context, username, channel string) (*Stats, error)
	CreateChallenge(ctx context.Context, c *Challenge) (int64, error)
	GetPending(ctx context.Context, challenger, target, channel string) (*Challenge, error)
	HasPendingFrom(ctx context.Context, challenger, channel string) (bool, error)
	ResolveChallenge(ctx context.Context, id int64, status string) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]*Challenge, error)
	CountDailyGames(ctx context.Context, username, channel string, since time.Time) (int, error)
}

// Ключ кулдауна между играми в таблице лимитера
const gambleCooldownKey = "gamble.cooldown"

// Service — движок азартных игр. Дуэли персистентны (duel.go),
// ограбления живут в памяти (heist.go).
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config
	loc *time.Location

	ledger  Ledger
	store   Store
	limiter Limiter
	table   *PayoutTable

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time

	heistMu sync.Mutex
	heists  map[string]*Heist // channel → сбор участников
}

// NewService создаёт движок игр с таблицей слотов по умолчанию.
func NewService(cfg *config.Config, l Ledger, store Store, lim Limiter) *Service {
	return &Service{
		cfg:     cfg,
		loc:     cfg.Location(),
		ledger:  l,
		store:   store,
		limiter: lim,
		table:   NewPayoutTable(DefaultPayoutEntries),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		heists:  make(map[string]*Heist),
	}
}

// UpdateConfig применяет новую конфигурацию.
func (s *Service) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.loc = cfg.Location()
}

func (s *Service) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// draw возвращает случайное число [0, 1). Генератор общий, под мьютексом.
func (s *Service) draw() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

// validate — общий гейт всех игр. Порядок проверок фиксирован:
// движок включён → счёт существует и не забанен → возраст счёта →
// диапазон ставки → баланс → дневной лимит → кулдаун.
// Ни одна проверка, кроме кулдауна, состояние не меняет; кулдаун
// потребляется последним, когда игра уже точно состоится.
// Отказ — Rejection с текстом для пользователя, не ошибка.
func (s *Service) validate(ctx context.Context, username, channel string, wager int64) (*Rejection, error) {
	cfg := s.config()

	if !cfg.GamblingEnabled {
		return &Rejection{Message: "🎰 Азартные игры отключены"}, nil
	}

	acc, err := s.ledger.GetAccount(ctx, username, channel)
	if err == common.ErrAccountNotFound {
		return &Rejection{Message: "🎰 Сначала заработай пленки — счёт появляется с первой награды"}, nil
	}
	if err != nil {
		return nil, err
	}
	if acc.EconomyBanned {
		return &Rejection{Message: "🎰 Ты исключён из экономики"}, nil
	}

	now := s.now()
	if age := now.Sub(acc.CreatedAt); age < cfg.GamblingMinAccountAge {
		mins := int((cfg.GamblingMinAccountAge - age).Minutes()) + 1
		return &Rejection{Message: fmt.Sprintf(
			"🎰 Счёт слишком молодой, играть можно через %d %s",
			mins, common.PluralizeMinutes(mins),
		)}, nil
	}

	if wager < cfg.GamblingMinWager || wager > cfg.GamblingMaxWager {
		return &Rejection{Message: fmt.Sprintf(
			"🎰 Ставка от %s до %s",
			common.FormatBalance(cfg.GamblingMinWager),
			common.FormatBalance(cfg.GamblingMaxWager),
		)}, nil
	}

	if acc.Balance < wager {
		return &Rejection{Message: fmt.Sprintf(
			"🎰 Не хватает пленок: на счету %s", common.FormatBalance(acc.Balance),
		)}, nil
	}

	if cfg.GamblingDailyLimit > 0 {
		played, err := s.store.CountDailyGames(ctx, username, channel, common.TruncateToDay(now, s.loc))
		if err != nil {
			return nil, err
		}
		if played >= cfg.GamblingDailyLimit {
			return &Rejection{Message: "🎰 Дневной лимит игр исчерпан, возвращайся завтра"}, nil
		}
	}

	if cfg.GamblingCooldown > 0 {
		allowed, err := s.limiter.Allow(ctx, username, channel, gambleCooldownKey,
			cooldown.Limit{MaxCount: 1, Window: cfg.GamblingCooldown})
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &Rejection{Message: "🎰 Не так быстро, подожди немного между играми"}, nil
		}
	}

	return nil, nil
}

// escrow списывает ставку и фиксирует её в журнале. false — баланс
// успел уйти между проверкой и списанием (гонка, не сбой).
func (s *Service) escrow(ctx context.Context, username, channel string, wager int64, game, reason string) (bool, error) {
	ok, err := s.ledger.AtomicDebit(ctx, username, channel, wager)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	err = s.ledger.RecordWager(ctx, ledger.Entry{
		Username:  username,
		Channel:   channel,
		Amount:    wager,
		Type:      ledger.TxTypeGambleWager,
		Reason:    reason,
		TriggerID: game,
	})
	if err != nil {
		// Баланс уже уменьшен, а журнал — нет: это нарушение сверки,
		// о котором обязан знать оператор.
		log.WithError(err).WithFields(log.Fields{
			"username": username, "channel": channel, "game": game,
		}).Error("Ставка списана, но не записана в журнал")
		return true, err
	}
	return true, nil
}

var errEscrowLost = &Rejection{Message: "🎰 Не хватает пленок"}

// PlaySlots крутит слоты на wager пленок.
func (s *Service) PlaySlots(ctx context.Context, username, channel string, wager int64) (*Outcome, *Rejection, error) {
	if rej, err := s.validate(ctx, username, channel, wager); rej != nil || err != nil {
		return nil, rej, err
	}

	ok, err := s.escrow(ctx, username, channel, wager, GameSlots, "Ставка: слоты")
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, errEscrowLost, nil
	}

	entry := s.table.Resolve(s.draw())
	payout := entry.Payout(wager)
	if payout > 0 {
		_, err = s.ledger.CreditPayout(ctx, ledger.Entry{
			Username:  username,
			Channel:   channel,
			Amount:    payout,
			Type:      ledger.TxTypeGamblePayout,
			Reason:    fmt.Sprintf("Слоты: %s", entry.Label),
			TriggerID: GameSlots,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	net := payout - wager
	if err := s.store.RecordGame(ctx, username, channel, GameSlots, net); err != nil {
		log.WithError(err).Warn("Статистика слотов не записана")
	}

	out := &Outcome{
		Game:     GameSlots,
		Username: username,
		Wager:    wager,
		Payout:   payout,
		Net:      net,
	}
	switch {
	case entry.IsJackpot():
		out.Kind = OutcomeJackpot
		out.Announce = true
		out.Message = fmt.Sprintf("🎰 %s | ДЖЕКПОТ! %s выигрывает %s!",
			entry.Symbols, username, common.FormatBalance(payout))
	case net > 0:
		out.Kind = OutcomeWin
		out.Message = fmt.Sprintf("🎰 %s | %s: выигрыш %s",
			entry.Symbols, entry.Label, common.FormatBalance(payout))
	case net == 0:
		out.Kind = OutcomePush
		out.Message = fmt.Sprintf("🎰 %s | %s: ставка вернулась", entry.Symbols, entry.Label)
	default:
		out.Kind = OutcomeLoss
		out.Message = fmt.Sprintf("🎰 %s | Мимо, минус %s", entry.Symbols, common.FormatBalance(wager))
	}
	return out, nil, nil
}

// PlayFlip подбрасывает монетку: выигрыш — двойная ставка,
// вероятность задаётся конфигом (дом всегда в небольшом плюсе).
func (s *Service) PlayFlip(ctx context.Context, username, channel string, wager int64) (*Outcome, *Rejection, error) {
	if rej, err := s.validate(ctx, username, channel, wager); rej != nil || err != nil {
		return nil, rej, err
	}

	ok, err := s.escrow(ctx, username, channel, wager, GameFlip, "Ставка: монетка")
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, errEscrowLost, nil
	}

	cfg := s.config()
	win := s.draw() < cfg.FlipWinProbability

	var payout int64
	if win {
		payout = wager * 2
		_, err = s.ledger.CreditPayout(ctx, ledger.Entry{
			Username:  username,
			Channel:   channel,
			Amount:    payout,
			Type:      ledger.TxTypeGamblePayout,
			Reason:    "Монетка: выигрыш",
			TriggerID: GameFlip,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	net := payout - wager
	if err := s.store.RecordGame(ctx, username, channel, GameFlip, net); err != nil {
		log.WithError(err).Warn("Статистика монетки не записана")
	}

	out := &Outcome{
		Game:     GameFlip,
		Username: username,
		Wager:    wager,
		Payout:   payout,
		Net:      net,
	}
	if win {
		out.Kind = OutcomeWin
		out.Message = fmt.Sprintf("🪙 Орёл! Выигрыш %s", common.FormatBalance(payout))
	} else {
		out.Kind = OutcomeLoss
		out.Message = fmt.Sprintf("🪙 Решка, минус %s", common.FormatBalance(wager))
	}
	return out, nil, nil
}

// StatsText возвращает форматированную статистику игрока.
func (s *Service) StatsText(ctx context.Context, username, channel string) (string, error) {
	st, err := s.store.GetStats(ctx, username, channel)
	if err != nil {
		return "", err
	}
	if st == nil {
		return "🎲 Ты ещё не играл", nil
	}
	total := st.SlotsPlayed + st.FlipsPlayed + st.DuelsPlayed + st.HeistsPlayed
	return fmt.Sprintf(
		"🎲 Игр сыграно: %d (слоты %d, монетка %d, дуэли %d, ограбления %d)\n"+
			"Лучший выигрыш: %s | Худший проигрыш: %s | Итог: %s",
		total, st.SlotsPlayed, st.FlipsPlayed, st.DuelsPlayed, st.HeistsPlayed,
		common.FormatFilmsAmount(st.BiggestWin),
		common.FormatFilmsAmount(st.BiggestLoss),
		common.FormatFilmsAmount(st.Net),
	), nil
}
