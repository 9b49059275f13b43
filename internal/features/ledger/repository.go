// Package ledger — repository.go выполняет все операции с таблицами accounts и transactions.
// Каждая денежная операция выполняется в одной транзакции БД: изменение баланса
// и запись в журнал фиксируются вместе или не фиксируются вовсе.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/cinema-bot/internal/common"
)

// Repository предоставляет методы для работы со счетами и журналом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ensureAccount лениво создаёт счёт с нулевым балансом.
// Вызывается внутри транзакции перед начислением.
func ensureAccount(ctx context.Context, tx pgx.Tx, username, channel string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (username, channel)
		VALUES ($1, $2)
		ON CONFLICT (username, channel) DO NOTHING
	`, username, channel)
	if err != nil {
		return fmt.Errorf("ошибка создания счёта: %w", err)
	}
	return nil
}

// insertTransaction добавляет запись в журнал. amount уже со знаком.
func insertTransaction(ctx context.Context, tx pgx.Tx, e Entry, amount int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (username, channel, amount, tx_type, reason, trigger_id, related_user, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.Username, e.Channel, amount, e.Type, e.Reason, e.TriggerID, e.RelatedUser, e.Metadata)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

// Credit начисляет пленки на счёт. Счёт создаётся лениво, операция
// всегда успешна (кроме сбоев БД). Возвращает новый баланс.
func (r *Repository) Credit(ctx context.Context, e Entry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureAccount(ctx, tx, e.Username, e.Channel); err != nil {
		return 0, err
	}

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $3, lifetime_earned = lifetime_earned + $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2
		RETURNING balance
	`, e.Username, e.Channel, e.Amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка начисления: %w", err)
	}

	if err := insertTransaction(ctx, tx, e, e.Amount); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации: %w", err)
	}
	return newBalance, nil
}

// Debit списывает пленки со счёта. Списание условное: один UPDATE
// с предикатом balance >= amount, поэтому овердрафт невозможен даже
// при гонке параллельных списаний. Нехватка средств — не сбой,
// а сентинельная ошибка common.ErrInsufficientBalance.
func (r *Repository) Debit(ctx context.Context, e Entry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance - $3, lifetime_spent = lifetime_spent + $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2 AND balance >= $3
		RETURNING balance
	`, e.Username, e.Channel, e.Amount).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Либо счёта нет, либо не хватает пленок — различаем
		exists, eErr := r.accountExists(ctx, e.Username, e.Channel)
		if eErr != nil {
			return 0, eErr
		}
		if !exists {
			return 0, common.ErrAccountNotFound
		}
		return 0, common.ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка списания: %w", err)
	}

	if err := insertTransaction(ctx, tx, e, -e.Amount); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации: %w", err)
	}
	return newBalance, nil
}

// AtomicDebit — примитив эскроу для азартных игр: одно условное списание
// без записи в журнал. Возвращает true, если списание прошло.
// Журнальную запись ставки делает RecordWager сразу после успеха.
func (r *Repository) AtomicDebit(ctx context.Context, username, channel string, amount int64) (bool, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET balance = balance - $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2 AND balance >= $3
	`, username, channel, amount)
	if err != nil {
		return false, fmt.Errorf("ошибка эскроу: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// RecordWager записывает ставку в журнал (отрицательной суммой) и
// увеличивает lifetime_gambled_in. Баланс НЕ трогает — он уже уменьшен
// предшествующим AtomicDebit.
func (r *Repository) RecordWager(ctx context.Context, e Entry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET lifetime_gambled_in = lifetime_gambled_in + $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2
	`, e.Username, e.Channel, e.Amount)
	if err != nil {
		return fmt.Errorf("ошибка учёта ставки: %w", err)
	}

	if err := insertTransaction(ctx, tx, e, -e.Amount); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreditPayout начисляет выигрыш: баланс и lifetime_gambled_out растут,
// запись в журнал положительная. Возвращает новый баланс.
func (r *Repository) CreditPayout(ctx context.Context, e Entry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $3, lifetime_gambled_out = lifetime_gambled_out + $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2
		RETURNING balance
	`, e.Username, e.Channel, e.Amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка выплаты: %w", err)
	}

	if err := insertTransaction(ctx, tx, e, e.Amount); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации: %w", err)
	}
	return newBalance, nil
}

// RefundWager возвращает ставку: баланс растёт, lifetime_gambled_in
// уменьшается (ставка отменена), запись в журнал положительная.
func (r *Repository) RefundWager(ctx context.Context, e Entry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $3, lifetime_gambled_in = lifetime_gambled_in - $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2
		RETURNING balance
	`, e.Username, e.Channel, e.Amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка возврата ставки: %w", err)
	}

	if err := insertTransaction(ctx, tx, e, e.Amount); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации: %w", err)
	}
	return newBalance, nil
}

// GetAccount возвращает счёт. Если счёта нет — common.ErrAccountNotFound.
func (r *Repository) GetAccount(ctx context.Context, username, channel string) (*Account, error) {
	query := `
		SELECT username, channel, balance, lifetime_earned, lifetime_spent,
		       lifetime_gambled_in, lifetime_gambled_out, rank_name, economy_banned,
		       created_at, updated_at
		FROM accounts
		WHERE username = $1 AND channel = $2
	`
	var a Account
	err := r.db.QueryRow(ctx, query, username, channel).Scan(
		&a.Username, &a.Channel, &a.Balance, &a.LifetimeEarned, &a.LifetimeSpent,
		&a.LifetimeGambledIn, &a.LifetimeGambledOut, &a.RankName, &a.EconomyBanned,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения счёта: %w", err)
	}
	return &a, nil
}

// GetBalance возвращает текущий баланс (0, если счёта ещё нет).
func (r *Repository) GetBalance(ctx context.Context, username, channel string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE username = $1 AND channel = $2`,
		username, channel,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

func (r *Repository) accountExists(ctx context.Context, username, channel string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1 AND channel = $2)`,
		username, channel,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки существования счёта: %w", err)
	}
	return exists, nil
}

// SetBanned включает или выключает экономический бан счёта.
// Счёт создаётся лениво, чтобы бан можно было выдать до первого начисления.
func (r *Repository) SetBanned(ctx context.Context, username, channel string, banned bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureAccount(ctx, tx, username, channel); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE accounts SET economy_banned = $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2
	`, username, channel, banned)
	if err != nil {
		return fmt.Errorf("ошибка установки бана: %w", err)
	}
	return tx.Commit(ctx)
}

// SetBalance устанавливает точный баланс (админская директива).
// Разница с текущим балансом записывается в журнал одной транзакцией,
// чтобы инвариант «баланс == сумма журнала» сохранился.
func (r *Repository) SetBalance(ctx context.Context, e Entry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureAccount(ctx, tx, e.Username, e.Channel); err != nil {
		return 0, err
	}

	// Блокируем строку, чтобы разница считалась от актуального баланса
	var current int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM accounts WHERE username = $1 AND channel = $2 FOR UPDATE
	`, e.Username, e.Channel).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения баланса: %w", err)
	}

	delta := e.Amount - current
	if delta == 0 {
		return current, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET balance = $3, updated_at = NOW()
		WHERE username = $1 AND channel = $2
	`, e.Username, e.Channel, e.Amount)
	if err != nil {
		return 0, fmt.Errorf("ошибка установки баланса: %w", err)
	}

	if err := insertTransaction(ctx, tx, e, delta); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации: %w", err)
	}
	return e.Amount, nil
}

// GetTransactions возвращает последние N транзакций счёта.
func (r *Repository) GetTransactions(ctx context.Context, username, channel string, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, username, channel, amount, tx_type, reason, trigger_id, related_user, metadata, created_at
		FROM transactions
		WHERE username = $1 AND channel = $2
		ORDER BY id DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, username, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		var t Transaction
		err := rows.Scan(
			&t.ID, &t.Username, &t.Channel, &t.Amount, &t.Type,
			&t.Reason, &t.TriggerID, &t.RelatedUser, &t.Metadata, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		transactions = append(transactions, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return transactions, nil
}

// SumTransactions возвращает сумму журнала по счёту.
// Используется обслуживанием и тестами для сверки с балансом.
func (r *Repository) SumTransactions(ctx context.Context, username, channel string) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE username = $1 AND channel = $2`,
		username, channel,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ошибка суммирования журнала: %w", err)
	}
	return sum, nil
}

// TopBalances возвращает верхушку канала по балансу.
func (r *Repository) TopBalances(ctx context.Context, channel string, limit int) ([]*Account, error) {
	query := `
		SELECT username, channel, balance, lifetime_earned, lifetime_spent,
		       lifetime_gambled_in, lifetime_gambled_out, rank_name, economy_banned,
		       created_at, updated_at
		FROM accounts
		WHERE channel = $1 AND economy_banned = FALSE
		ORDER BY balance DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса топа: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.Username, &a.Channel, &a.Balance, &a.LifetimeEarned, &a.LifetimeSpent,
			&a.LifetimeGambledIn, &a.LifetimeGambledOut, &a.RankName, &a.EconomyBanned,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// UpdateRanks пересчитывает кэшированные имена рангов канала.
// rankFor — функция порога (см. ranks.go). Возвращает число обновлённых счетов.
func (r *Repository) UpdateRanks(ctx context.Context, channel string, rankFor func(int64) string) (int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT username, lifetime_earned, rank_name FROM accounts WHERE channel = $1`,
		channel,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка выборки счетов: %w", err)
	}
	defer rows.Close()

	type change struct{ username, rank string }
	var changes []change
	for rows.Next() {
		var username, rank string
		var earned int64
		if err := rows.Scan(&username, &earned, &rank); err != nil {
			return 0, fmt.Errorf("ошибка сканирования: %w", err)
		}
		if want := rankFor(earned); want != rank {
			changes = append(changes, change{username, want})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ошибка чтения строк: %w", err)
	}

	for _, c := range changes {
		_, err := r.db.Exec(ctx,
			`UPDATE accounts SET rank_name = $3, updated_at = NOW() WHERE username = $1 AND channel = $2`,
			c.username, channel, c.rank,
		)
		if err != nil {
			return 0, fmt.Errorf("ошибка обновления ранга: %w", err)
		}
	}
	return len(changes), nil
}

// Channels возвращает список каналов, в которых есть счета.
func (r *Repository) Channels(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT channel FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки каналов: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
