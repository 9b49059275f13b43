// Package cooldown — repository.go выполняет операции с таблицей cooldown_windows.
// Проверка и инкремент выполняются в одной транзакции с блокировкой строки,
// чтобы параллельные проверки не превышали лимит.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает с таблицей cooldown_windows.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий лимитера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Allow проверяет и учитывает одно срабатывание.
//
// Логика фиксированного окна:
//   - строки нет → вставляем count=1, window_start=now, разрешаем;
//   - now − window_start >= limit.Window → сбрасываем в count=1, разрешаем;
//   - count >= limit.MaxCount → запрещаем БЕЗ изменения строки;
//   - иначе инкрементируем и разрешаем.
func (r *Repository) Allow(ctx context.Context, username, channel, triggerID string, limit Limit, now time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	var windowStart time.Time
	err = tx.QueryRow(ctx, `
		SELECT count, window_start FROM cooldown_windows
		WHERE username = $1 AND channel = $2 AND trigger_id = $3
		FOR UPDATE
	`, username, channel, triggerID).Scan(&count, &windowStart)

	if errors.Is(err, pgx.ErrNoRows) {
		// Две параллельные первые проверки: проигравший гонку INSERT
		// ничего не вставит, перечитает строку победителя и пойдёт
		// по обычным веткам лимитера.
		cmd, insErr := tx.Exec(ctx, `
			INSERT INTO cooldown_windows (username, channel, trigger_id, count, window_start)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (username, channel, trigger_id) DO NOTHING
		`, username, channel, triggerID, now)
		if insErr != nil {
			return false, fmt.Errorf("ошибка создания окна: %w", insErr)
		}
		if cmd.RowsAffected() == 1 {
			if err := tx.Commit(ctx); err != nil {
				return false, fmt.Errorf("ошибка фиксации: %w", err)
			}
			return true, nil
		}
		err = tx.QueryRow(ctx, `
			SELECT count, window_start FROM cooldown_windows
			WHERE username = $1 AND channel = $2 AND trigger_id = $3
			FOR UPDATE
		`, username, channel, triggerID).Scan(&count, &windowStart)
	}

	switch {
	case err != nil:
		return false, fmt.Errorf("ошибка чтения окна: %w", err)

	case now.Sub(windowStart) >= limit.Window:
		// Окно истекло — начинаем новое
		_, err = tx.Exec(ctx, `
			UPDATE cooldown_windows SET count = 1, window_start = $4
			WHERE username = $1 AND channel = $2 AND trigger_id = $3
		`, username, channel, triggerID, now)
		if err != nil {
			return false, fmt.Errorf("ошибка сброса окна: %w", err)
		}

	case count >= limit.MaxCount:
		// Лимит достигнут: запрет без мутации
		return false, nil

	default:
		_, err = tx.Exec(ctx, `
			UPDATE cooldown_windows SET count = count + 1
			WHERE username = $1 AND channel = $2 AND trigger_id = $3
		`, username, channel, triggerID)
		if err != nil {
			return false, fmt.Errorf("ошибка инкремента окна: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации: %w", err)
	}
	return true, nil
}

// Get возвращает текущее состояние окна (nil, если строки нет).
func (r *Repository) Get(ctx context.Context, username, channel, triggerID string) (*Window, error) {
	var w Window
	err := r.db.QueryRow(ctx, `
		SELECT username, channel, trigger_id, count, window_start
		FROM cooldown_windows
		WHERE username = $1 AND channel = $2 AND trigger_id = $3
	`, username, channel, triggerID).Scan(&w.Username, &w.Channel, &w.TriggerID, &w.Count, &w.WindowStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения окна: %w", err)
	}
	return &w, nil
}
