// Package gambling — duel.go реализует двухфазную дуэль.
// Фаза 1: вызов, ставка вызывающего уходит в эскроу. Фаза 2: цель
// принимает (её ставка в эскроу, немедленный розыгрыш банка) либо
// отклоняет/не отвечает (возврат ставки вызывающему).
package gambling

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// DuelResult — исход состоявшейся дуэли.
type DuelResult struct {
	Winner  string
	Loser   string
	Wager   int64
	Pot     int64
	Rake    int64
	Prize   int64
	Message string
}

// CreateChallenge создаёт вызов на дуэль. Ставка вызывающего
// списывается сразу: отказаться от уже брошенного вызова нельзя.
func (s *Service) CreateChallenge(ctx context.Context, challenger, target, channel string, wager int64) (*Challenge, *Rejection, error) {
	if challenger == target {
		return nil, &Rejection{Message: "⚔️ С собой драться нельзя"}, nil
	}

	if rej, err := s.validate(ctx, challenger, channel, wager); rej != nil || err != nil {
		return nil, rej, err
	}

	pending, err := s.store.HasPendingFrom(ctx, challenger, channel)
	if err != nil {
		return nil, nil, err
	}
	if pending {
		return nil, &Rejection{Message: "⚔️ У тебя уже есть висящий вызов"}, nil
	}

	ok, err := s.escrow(ctx, challenger, channel, wager, GameDuel,
		fmt.Sprintf("Дуэль: вызов %s", target))
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, errEscrowLost, nil
	}

	c := &Challenge{
		Challenger: challenger,
		Target:     target,
		Channel:    channel,
		Wager:      wager,
		Status:     ChallengePending,
		ExpiresAt:  s.now().Add(s.config().DuelExpiry),
	}
	id, err := s.store.CreateChallenge(ctx, c)
	if err == common.ErrChallengePending {
		// Гонка двух одинаковых вызовов: второй проиграл, ставку назад
		if rErr := s.refundChallenger(ctx, challenger, channel, wager, "Дуэль: дубль вызова"); rErr != nil {
			return nil, nil, rErr
		}
		return nil, &Rejection{Message: "⚔️ Такой вызов уже висит"}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	c.ID = id

	log.WithFields(log.Fields{
		"challenger": challenger, "target": target, "channel": channel, "wager": wager,
	}).Info("Вызов на дуэль создан")
	return c, nil, nil
}

// AcceptChallenge принимает вызов и немедленно разыгрывает банк.
// Просроченный вызов отвергается даже если уборка его ещё не подмела:
// вызов истекает по метке времени, а не по факту уборки.
func (s *Service) AcceptChallenge(ctx context.Context, target, challenger, channel string) (*DuelResult, *Rejection, error) {
	c, err := s.store.GetPending(ctx, challenger, target, channel)
	if err == common.ErrChallengeNotFound {
		return nil, &Rejection{Message: "⚔️ Вызова нет"}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if s.now().After(c.ExpiresAt) {
		if done, err := s.store.ResolveChallenge(ctx, c.ID, ChallengeExpired); err != nil {
			return nil, nil, err
		} else if done {
			if err := s.refundChallenger(ctx, c.Challenger, channel, c.Wager, "Дуэль: вызов истёк"); err != nil {
				return nil, nil, err
			}
		}
		return nil, &Rejection{Message: "⚔️ Вызов уже истёк"}, nil
	}

	// Цель проходит тот же гейт, что и вызывающий при создании
	if rej, err := s.validate(ctx, target, channel, c.Wager); rej != nil || err != nil {
		return nil, rej, err
	}

	ok, err := s.escrow(ctx, target, channel, c.Wager, GameDuel,
		fmt.Sprintf("Дуэль: принятие вызова %s", challenger))
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, errEscrowLost, nil
	}

	// Условный переход pending→accepted; проигрыш гонки с уборкой
	// означает, что ставку цели надо вернуть
	done, err := s.store.ResolveChallenge(ctx, c.ID, ChallengeAccepted)
	if err != nil {
		return nil, nil, err
	}
	if !done {
		if err := s.refundChallenger(ctx, target, channel, c.Wager, "Дуэль: вызов уже закрыт"); err != nil {
			return nil, nil, err
		}
		return nil, &Rejection{Message: "⚔️ Вызов уже закрыт"}, nil
	}

	// Бросок меньше 0.5 — побеждает вызывающий, иначе цель
	winner, loser := target, c.Challenger
	if s.draw() < 0.5 {
		winner, loser = c.Challenger, target
	}

	pot := c.Wager * 2
	rake := pot * s.config().DuelRakePercent / 100
	prize := pot - rake

	_, err = s.ledger.CreditPayout(ctx, ledger.Entry{
		Username:    winner,
		Channel:     channel,
		Amount:      prize,
		Type:        ledger.TxTypeGamblePayout,
		Reason:      fmt.Sprintf("Дуэль: победа над %s", loser),
		TriggerID:   GameDuel,
		RelatedUser: loser,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.RecordGame(ctx, winner, channel, GameDuel, prize-c.Wager); err != nil {
		log.WithError(err).Warn("Статистика дуэли (победитель) не записана")
	}
	if err := s.store.RecordGame(ctx, loser, channel, GameDuel, -c.Wager); err != nil {
		log.WithError(err).Warn("Статистика дуэли (проигравший) не записана")
	}

	return &DuelResult{
		Winner: winner,
		Loser:  loser,
		Wager:  c.Wager,
		Pot:    pot,
		Rake:   rake,
		Prize:  prize,
		Message: fmt.Sprintf("⚔️ %s побеждает %s и забирает %s (комиссия %s)",
			winner, loser, common.FormatBalance(prize), common.FormatBalance(rake)),
	}, nil, nil
}

// DeclineChallenge отклоняет вызов, ставка возвращается вызывающему.
func (s *Service) DeclineChallenge(ctx context.Context, target, challenger, channel string) (*Rejection, error) {
	c, err := s.store.GetPending(ctx, challenger, target, channel)
	if err == common.ErrChallengeNotFound {
		return &Rejection{Message: "⚔️ Вызова нет"}, nil
	}
	if err != nil {
		return nil, err
	}

	done, err := s.store.ResolveChallenge(ctx, c.ID, ChallengeDeclined)
	if err != nil {
		return nil, err
	}
	if !done {
		return &Rejection{Message: "⚔️ Вызов уже закрыт"}, nil
	}

	if err := s.refundChallenger(ctx, c.Challenger, channel, c.Wager, "Дуэль: вызов отклонён"); err != nil {
		return nil, err
	}
	return nil, nil
}

// ExpireChallenges помечает просроченные вызовы и возвращает ставки.
// Запускается фоновой уборкой. Возвращает вызовы для уведомлений.
func (s *Service) ExpireChallenges(ctx context.Context) ([]*Challenge, error) {
	expired, err := s.store.ExpireDue(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for _, c := range expired {
		if err := s.refundChallenger(ctx, c.Challenger, c.Channel, c.Wager, "Дуэль: вызов истёк"); err != nil {
			// Возврат не прошёл, но вызов уже помечен: лог и дальше,
			// остальные просроченные вызовы важнее
			log.WithError(err).WithFields(log.Fields{
				"challenger": c.Challenger, "channel": c.Channel,
			}).Error("Возврат ставки за истёкший вызов не прошёл")
			continue
		}
		log.WithFields(log.Fields{
			"challenger": c.Challenger, "target": c.Target, "channel": c.Channel,
		}).Info("Вызов на дуэль истёк, ставка возвращена")
	}
	return expired, nil
}

func (s *Service) refundChallenger(ctx context.Context, username, channel string, wager int64, reason string) error {
	_, err := s.ledger.RefundWager(ctx, ledger.Entry{
		Username:  username,
		Channel:   channel,
		Amount:    wager,
		Type:      ledger.TxTypeGambleRefund,
		Reason:    reason,
		TriggerID: GameDuel,
	})
	return err
}
