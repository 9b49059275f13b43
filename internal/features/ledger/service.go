// Package ledger — service.go содержит бизнес-логику леджера:
// валидация сумм, проверка бана, форматирование истории и топа.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/common"
)

// Service управляет экономикой бота (пленки).
type Service struct {
	repo *Repository
	loc  *time.Location
}

// NewService создаёт новый сервис леджера.
func NewService(repo *Repository, loc *time.Location) *Service {
	return &Service{repo: repo, loc: loc}
}

// Credit начисляет пленки. Счёт создаётся лениво, операция всегда
// успешна (кроме сбоев БД). Возвращает новый баланс.
func (s *Service) Credit(ctx context.Context, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.Credit(ctx, e)
}

// Debit списывает пленки. Нехватка средств — common.ErrInsufficientBalance,
// не сбой: вызывающий код не должен строить на ней control flow исключений.
func (s *Service) Debit(ctx context.Context, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.Debit(ctx, e)
}

// AtomicDebit — условное списание без журнальной записи (эскроу ставок).
func (s *Service) AtomicDebit(ctx context.Context, username, channel string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, common.ErrInvalidAmount
	}
	return s.repo.AtomicDebit(ctx, username, channel, amount)
}

// RecordWager фиксирует ставку в журнале после успешного AtomicDebit.
func (s *Service) RecordWager(ctx context.Context, e Entry) error {
	return s.repo.RecordWager(ctx, e)
}

// CreditPayout начисляет выигрыш.
func (s *Service) CreditPayout(ctx context.Context, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.CreditPayout(ctx, e)
}

// RefundWager возвращает ставку (дуэль отклонена/истекла, ограбление отменено).
func (s *Service) RefundWager(ctx context.Context, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.RefundWager(ctx, e)
}

// GetAccount возвращает счёт пользователя в канале.
func (s *Service) GetAccount(ctx context.Context, username, channel string) (*Account, error) {
	return s.repo.GetAccount(ctx, username, channel)
}

// GetBalance возвращает баланс (0, если счёта ещё нет).
func (s *Service) GetBalance(ctx context.Context, username, channel string) (int64, error) {
	return s.repo.GetBalance(ctx, username, channel)
}

// IsBanned сообщает, исключён ли счёт из экономики.
// Отсутствующий счёт баном не считается — он создастся лениво.
func (s *Service) IsBanned(ctx context.Context, username, channel string) (bool, error) {
	acc, err := s.repo.GetAccount(ctx, username, channel)
	if err == common.ErrAccountNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acc.EconomyBanned, nil
}

// SetBanned включает/выключает экономический бан.
func (s *Service) SetBanned(ctx context.Context, username, channel string, banned bool) error {
	return s.repo.SetBanned(ctx, username, channel, banned)
}

// SetBalance устанавливает точный баланс (админская директива).
func (s *Service) SetBalance(ctx context.Context, e Entry) (int64, error) {
	if e.Amount < 0 {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.SetBalance(ctx, e)
}

// HistoryText возвращает форматированную историю последних транзакций.
func (s *Service) HistoryText(ctx context.Context, username, channel string) (string, error) {
	transactions, err := s.repo.GetTransactions(ctx, username, channel, 10)
	if err != nil {
		return "", err
	}

	if len(transactions) == 0 {
		return "📋 У тебя пока нет транзакций", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d транзакций:\n", len(transactions)))
	for i, tx := range transactions {
		sb.WriteString(fmt.Sprintf("%d. %s | %s | %s",
			i+1,
			common.FormatDateTime(tx.CreatedAt, s.loc),
			common.FormatFilmsAmount(tx.Amount),
			tx.Reason,
		))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// LeaderboardText возвращает форматированный топ канала по балансу.
func (s *Service) LeaderboardText(ctx context.Context, channel string) (string, error) {
	top, err := s.repo.TopBalances(ctx, channel, 10)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return "📊 В этом канале ещё никто не заработал пленок", nil
	}

	var sb strings.Builder
	sb.WriteString("🏆 Топ канала:\n")
	for i, a := range top {
		sb.WriteString(fmt.Sprintf("%d. %s — %s", i+1, a.Username, common.FormatBalance(a.Balance)))
		if a.RankName != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", a.RankName))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// RecomputeRanks пересчитывает кэшированные ранги во всех каналах.
// Запускается ежедневным обслуживанием.
func (s *Service) RecomputeRanks(ctx context.Context) error {
	channels, err := s.repo.Channels(ctx)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		n, err := s.repo.UpdateRanks(ctx, ch, RankFor)
		if err != nil {
			return fmt.Errorf("канал %s: %w", ch, err)
		}
		if n > 0 {
			log.WithFields(log.Fields{"channel": ch, "updated": n}).Info("Ранги пересчитаны")
		}
	}
	return nil
}
