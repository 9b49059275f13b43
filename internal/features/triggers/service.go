// Package triggers — service.go содержит пайплайн оценки сообщения.
//
// Порядок на каждое сообщение: гейт (игнор/бан) → оценка КАЖДОГО
// включённого триггера независимо (ошибка одного не блокирует остальные)
// → множитель → дробное накопление → кулдаун → начисление через леджер.
// Каждый сработавший триггер — отдельная транзакция в журнале,
// чтобы аналитика по триггерам оставалась атрибутируемой.
package triggers

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/events"
	"serotonyl.ru/cinema-bot/internal/features/channelstate"
	"serotonyl.ru/cinema-bot/internal/features/cooldown"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// Ledger — нужная пайплайну часть леджера.
type Ledger interface {
	Credit(ctx context.Context, e ledger.Entry) (int64, error)
	IsBanned(ctx context.Context, username, channel string) (bool, error)
}

// Limiter — нужная пайплайну часть лимитера.
type Limiter interface {
	Allow(ctx context.Context, username, channel, triggerID string, limit cooldown.Limit) (bool, error)
}

// Factors — суммарный множитель канала на текущий момент.
type Factors interface {
	Factor(channel string, population int) float64
}

// Service — пайплайн триггеров.
type Service struct {
	mu      sync.RWMutex
	set     []Trigger
	ignored map[string]struct{}

	ledger  Ledger
	limiter Limiter
	factors Factors
	state   *channelstate.Manager
	acc     *Accumulator
}

// NewService создаёт пайплайн с набором правил из конфигурации.
func NewService(cfg *config.Config, l Ledger, lim Limiter, f Factors, state *channelstate.Manager) *Service {
	s := &Service{
		ledger:  l,
		limiter: lim,
		factors: f,
		state:   state,
		acc:     NewAccumulator(),
	}
	s.applyConfig(cfg)
	return s
}

// UpdateConfig применяет новую конфигурацию: набор правил пересобирается,
// операции в полёте продолжают работать со старым снимком.
func (s *Service) UpdateConfig(cfg *config.Config) {
	s.applyConfig(cfg)
}

func (s *Service) applyConfig(cfg *config.Config) {
	ignored := make(map[string]struct{}, len(cfg.IgnoredUsers))
	for _, u := range cfg.IgnoredUsers {
		ignored[u] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = TriggersFromConfig(cfg)
	s.ignored = ignored
}

func (s *Service) snapshot() ([]Trigger, map[string]struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set, s.ignored
}

// hit — результат оценки условия одного триггера.
type hit struct {
	beneficiary string // кому начислять
	cooldownKey string // ключ лимитера (может быть составным)
	pairKey     string // второй, парный лимит (только kudos)
	reason      string // описание для журнала
	related     string // второй участник (для реактивных)
	blocked     string // причина блокировки до начисления
}

// Evaluate прогоняет сообщение через все триггеры и возвращает записи
// о наградах (включая заблокированные — для внешнего слоя).
func (s *Service) Evaluate(ctx context.Context, msg events.ChatMessage) []Award {
	set, ignored := s.snapshot()

	if _, ok := ignored[msg.Username]; ok {
		return nil
	}

	banned, err := s.ledger.IsBanned(ctx, msg.Username, msg.Channel)
	if err != nil {
		log.WithError(err).Error("Ошибка проверки бана, сообщение пропущено")
		return nil
	}
	if banned {
		return nil
	}

	// Предыдущий оратор нужен триггеру смеха; фиксируем ДО обновления
	prev := s.state.OnMessage(msg.Channel, msg.Username, msg.Text, msg.Timestamp)
	factor := s.factors.Factor(msg.Channel, s.state.Population(msg.Channel))

	var awards []Award
	for _, trig := range set {
		if !trig.Enabled {
			continue
		}
		award := s.evaluateOne(ctx, trig, msg, prev, ignored, factor)
		if award != nil {
			awards = append(awards, *award)
		}
	}
	return awards
}

// evaluateOne оценивает один триггер в изоляции: любая ошибка логируется
// и не мешает остальным. nil — условие не выполнено или начислять нечего.
func (s *Service) evaluateOne(ctx context.Context, trig Trigger, msg events.ChatMessage, prev *channelstate.LastMessage, ignored map[string]struct{}, factor float64) *Award {
	h := s.condition(trig, msg, prev)
	if h == nil {
		return nil
	}

	if h.blocked == "" {
		if h.beneficiary == msg.Username && isReactive(trig.Kind) {
			h.blocked = BlockedSelf
		} else if _, ok := ignored[h.beneficiary]; ok {
			h.blocked = BlockedIgnored
		}
	}
	if h.blocked != "" {
		return &Award{TriggerID: trig.ID, Username: h.beneficiary, Blocked: h.blocked}
	}

	// Дробное накопление: начисляем только целую часть
	amount := s.acc.Add(h.beneficiary, msg.Channel, trig.ID, trig.Reward*factor)
	if amount == 0 {
		return nil
	}

	// Кулдаун/лимит. Субъект лимита — отправитель, даже когда награду
	// получает другой: спамить благодарностями не должно быть выгодно.
	if trig.Limit.MaxCount > 0 {
		allowed, err := s.limiter.Allow(ctx, msg.Username, msg.Channel, h.cooldownKey, trig.Limit)
		if err != nil {
			log.WithError(err).WithField("trigger", trig.ID).Error("Ошибка лимитера")
			return nil
		}
		if !allowed {
			return &Award{TriggerID: trig.ID, Username: h.beneficiary, Blocked: BlockedCooldown}
		}
	}
	if h.pairKey != "" {
		allowed, err := s.limiter.Allow(ctx, msg.Username, msg.Channel, h.pairKey, cooldown.Limit{MaxCount: 1, Window: trig.Limit.Window})
		if err != nil {
			log.WithError(err).WithField("trigger", trig.ID).Error("Ошибка парного лимитера")
			return nil
		}
		if !allowed {
			return &Award{TriggerID: trig.ID, Username: h.beneficiary, Blocked: BlockedCooldown}
		}
	}

	newBalance, err := s.ledger.Credit(ctx, ledger.Entry{
		Username:    h.beneficiary,
		Channel:     msg.Channel,
		Amount:      amount,
		Type:        ledger.TxTypeTrigger,
		Reason:      h.reason,
		TriggerID:   trig.ID,
		RelatedUser: h.related,
	})
	if err != nil {
		// Сбой персистентности не глотаем молча, но и другие триггеры не рушим
		log.WithError(err).WithField("trigger", trig.ID).Error("Ошибка начисления награды")
		return nil
	}

	if trig.Kind == KindMediaComment {
		s.state.IncMediaCounter(msg.Channel, msg.Username)
	}

	return &Award{
		TriggerID:  trig.ID,
		Username:   h.beneficiary,
		Amount:     amount,
		NewBalance: newBalance,
	}
}

// condition проверяет условие триггера. nil — не выполнено.
// Неизвестный вид — «условие не выполнено» и запись в лог:
// за нераспознанное правило валюта не выдаётся никогда.
func (s *Service) condition(trig Trigger, msg events.ChatMessage, prev *channelstate.LastMessage) *hit {
	switch trig.Kind {
	case KindMessage:
		return &hit{
			beneficiary: msg.Username,
			cooldownKey: trig.ID,
			reason:      "Награда за активность",
		}

	case KindLongMessage:
		if len([]rune(msg.Text)) < trig.MinLength {
			return nil
		}
		return &hit{
			beneficiary: msg.Username,
			cooldownKey: trig.ID,
			reason:      "Длинное сообщение",
		}

	case KindLaugh:
		if !IsLaugh(msg.Text) {
			return nil
		}
		if prev == nil {
			return nil
		}
		return &hit{
			beneficiary: prev.Username,
			cooldownKey: trig.ID,
			reason:      "Рассмешил чат",
			related:     msg.Username,
		}

	case KindKudos:
		target, ok := ParseKudos(msg.Text)
		if !ok {
			return nil
		}
		return &hit{
			beneficiary: target,
			cooldownKey: trig.ID,
			pairKey:     fmt.Sprintf("%s.%s.%s", trig.ID, msg.Username, target),
			reason:      fmt.Sprintf("Благодарность от %s", msg.Username),
			related:     msg.Username,
		}

	case KindMention:
		target, ok := ParseMention(msg.Text)
		if !ok || target == msg.Username {
			return nil
		}
		return &hit{
			beneficiary: msg.Username,
			cooldownKey: fmt.Sprintf("%s.%s.%s", trig.ID, msg.Username, target),
			reason:      fmt.Sprintf("Приветствие @%s", target),
			related:     target,
		}

	case KindMediaComment:
		if s.state.CurrentMedia(msg.Channel) == nil {
			return nil
		}
		if trig.PerMediaCap > 0 && s.state.MediaCounter(msg.Channel, msg.Username) >= trig.PerMediaCap {
			return &hit{beneficiary: msg.Username, blocked: BlockedMediaCap}
		}
		return &hit{
			beneficiary: msg.Username,
			cooldownKey: trig.ID,
			reason:      "Комментарий к медиа",
		}

	default:
		log.WithFields(log.Fields{"trigger": trig.ID, "kind": int(trig.Kind)}).
			Error("Неизвестный вид триггера, условие считается невыполненным")
		return nil
	}
}

// isReactive сообщает, награждает ли вид триггера другого пользователя.
func isReactive(k Kind) bool {
	return k == KindLaugh || k == KindKudos
}
