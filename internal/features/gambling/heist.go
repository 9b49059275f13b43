// Package gambling — heist.go реализует ограбление: пуловую ставку,
// в которую участники входят в течение окна сбора. Одно ограбление
// на канал. Не набрали кворум — все ставки назад, копейка в копейку.
package gambling

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// HeistResult — исход завершённого ограбления для уведомлений.
type HeistResult struct {
	Channel string
	Status  string
	Payouts map[string]int64 // username → выплата (0 при провале)
	Message string
}

// StartHeist объявляет сбор на ограбление. Инициатор входит первым.
func (s *Service) StartHeist(ctx context.Context, username, channel string, wager int64) (*Heist, *Rejection, error) {
	// Сбор уже идёт — отказ до гейта, чтобы не сжечь кулдаун впустую
	s.heistMu.Lock()
	_, busy := s.heists[channel]
	s.heistMu.Unlock()
	if busy {
		return nil, &Rejection{Message: "🏦 Ограбление уже собирается, вступай"}, nil
	}

	if rej, err := s.validate(ctx, username, channel, wager); rej != nil || err != nil {
		return nil, rej, err
	}

	s.heistMu.Lock()
	if _, exists := s.heists[channel]; exists {
		s.heistMu.Unlock()
		return nil, &Rejection{Message: "🏦 Ограбление уже собирается, вступай"}, nil
	}
	// Резервируем канал до эскроу, чтобы второй StartHeist не проскочил
	h := &Heist{
		Channel:      channel,
		Initiator:    username,
		Participants: map[string]int64{},
		Deadline:     s.now().Add(s.config().HeistJoinWindow),
		Status:       HeistCollecting,
	}
	s.heists[channel] = h
	s.heistMu.Unlock()

	ok, err := s.escrow(ctx, username, channel, wager, GameHeist, "Ограбление: взнос")
	if err != nil || !ok {
		s.heistMu.Lock()
		delete(s.heists, channel)
		s.heistMu.Unlock()
		if err != nil {
			return nil, nil, err
		}
		return nil, errEscrowLost, nil
	}

	s.heistMu.Lock()
	h.Participants[username] = wager
	s.heistMu.Unlock()

	log.WithFields(log.Fields{"channel": channel, "initiator": username}).Info("Сбор на ограбление открыт")
	return h, nil, nil
}

// JoinHeist вступает в сбор. Повторный вход и вход после дедлайна запрещены.
func (s *Service) JoinHeist(ctx context.Context, username, channel string, wager int64) (*Rejection, error) {
	s.heistMu.Lock()
	h, exists := s.heists[channel]
	if !exists {
		s.heistMu.Unlock()
		return &Rejection{Message: "🏦 Сейчас никто не собирается на дело"}, nil
	}
	if s.now().After(h.Deadline) {
		s.heistMu.Unlock()
		return &Rejection{Message: "🏦 Поздно, команда уже выехала"}, nil
	}
	if _, in := h.Participants[username]; in {
		s.heistMu.Unlock()
		return &Rejection{Message: "🏦 Ты уже в деле"}, nil
	}
	s.heistMu.Unlock()

	if rej, err := s.validate(ctx, username, channel, wager); rej != nil || err != nil {
		return rej, err
	}

	ok, err := s.escrow(ctx, username, channel, wager, GameHeist, "Ограбление: взнос")
	if err != nil {
		return nil, err
	}
	if !ok {
		return errEscrowLost, nil
	}

	s.heistMu.Lock()
	h, exists = s.heists[channel]
	stillOpen := exists && !s.now().After(h.Deadline)
	if stillOpen {
		h.Participants[username] = wager
	}
	s.heistMu.Unlock()

	if !stillOpen {
		// Сбор закрылся, пока мы списывали: взнос назад
		if err := s.refundHeistWager(ctx, username, channel, wager); err != nil {
			return nil, err
		}
		return &Rejection{Message: "🏦 Поздно, команда уже выехала"}, nil
	}
	return nil, nil
}

// ResolveDueHeists закрывает ограбления с истёкшим окном сбора.
// Вызывается фоновой уборкой. Меньше кворума — возврат всем; иначе
// единый бросок на всю команду, выплата каждому от его взноса.
func (s *Service) ResolveDueHeists(ctx context.Context) []*HeistResult {
	now := s.now()

	s.heistMu.Lock()
	var due []*Heist
	for ch, h := range s.heists {
		if now.After(h.Deadline) {
			due = append(due, h)
			delete(s.heists, ch)
		}
	}
	s.heistMu.Unlock()

	var results []*HeistResult
	for _, h := range due {
		results = append(results, s.resolveHeist(ctx, h))
	}
	return results
}

func (s *Service) resolveHeist(ctx context.Context, h *Heist) *HeistResult {
	cfg := s.config()
	res := &HeistResult{Channel: h.Channel, Payouts: map[string]int64{}}

	if len(h.Participants) < cfg.HeistMinParticipants {
		res.Status = HeistCancelled
		for username, wager := range h.Participants {
			if err := s.refundHeistWager(ctx, username, h.Channel, wager); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"username": username, "channel": h.Channel,
				}).Error("Возврат взноса за сорвавшееся ограбление не прошёл")
			}
		}
		res.Message = fmt.Sprintf("🏦 Команда не собралась (минимум %d %s), взносы возвращены",
			cfg.HeistMinParticipants, common.PluralizeParticipants(cfg.HeistMinParticipants))
		return res
	}

	success := s.draw() < cfg.HeistSuccessProbability
	var names []string
	for username, wager := range h.Participants {
		names = append(names, username)
		var net int64
		if success {
			payout := wager * cfg.HeistPayoutMultiplier
			res.Payouts[username] = payout
			net = payout - wager
			_, err := s.ledger.CreditPayout(ctx, ledger.Entry{
				Username:  username,
				Channel:   h.Channel,
				Amount:    payout,
				Type:      ledger.TxTypeGamblePayout,
				Reason:    "Ограбление: доля добычи",
				TriggerID: GameHeist,
			})
			if err != nil {
				log.WithError(err).WithField("username", username).Error("Выплата доли ограбления не прошла")
				continue
			}
		} else {
			net = -wager
		}
		if err := s.store.RecordGame(ctx, username, h.Channel, GameHeist, net); err != nil {
			log.WithError(err).Warn("Статистика ограбления не записана")
		}
	}

	if success {
		res.Status = HeistSuccess
		res.Message = fmt.Sprintf("🏦 Дело выгорело! Команда (%s) делит добычу ×%d",
			strings.Join(names, ", "), cfg.HeistPayoutMultiplier)
	} else {
		res.Status = HeistFailure
		res.Message = "🏦 Сигнализация! Команду повязали, взносы пропали"
	}
	return res
}

// CurrentHeist возвращает снимок сбора в канале (nil, если сбора нет).
func (s *Service) CurrentHeist(channel string) *Heist {
	s.heistMu.Lock()
	defer s.heistMu.Unlock()
	h, ok := s.heists[channel]
	if !ok {
		return nil
	}
	cp := &Heist{
		Channel:      h.Channel,
		Initiator:    h.Initiator,
		Participants: make(map[string]int64, len(h.Participants)),
		Deadline:     h.Deadline,
		Status:       h.Status,
	}
	for u, w := range h.Participants {
		cp.Participants[u] = w
	}
	return cp
}

func (s *Service) refundHeistWager(ctx context.Context, username, channel string, wager int64) error {
	_, err := s.ledger.RefundWager(ctx, ledger.Entry{
		Username:  username,
		Channel:   channel,
		Amount:    wager,
		Type:      ledger.TxTypeGambleRefund,
		Reason:    "Ограбление: возврат взноса",
		TriggerID: GameHeist,
	})
	return err
}
