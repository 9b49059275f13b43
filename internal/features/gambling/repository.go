// Package gambling — repository.go работает с таблицами gambling_stats
// и duel_challenges.
package gambling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/cinema-bot/internal/common"
)

// Repository хранит статистику игр и вызовы на дуэль.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий азартных игр.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RecordGame фиксирует сыгранную игру одним upsert-ом: счётчик игры,
// нетто и рекорды. biggest_loss хранится отрицательным числом.
func (r *Repository) RecordGame(ctx context.Context, username, channel, game string, net int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO gambling_stats (username, channel, slots_played, flips_played, duels_played, heists_played, biggest_win, biggest_loss, net)
		VALUES ($1, $2,
			CASE WHEN $3 = 'slots' THEN 1 ELSE 0 END,
			CASE WHEN $3 = 'flip'  THEN 1 ELSE 0 END,
			CASE WHEN $3 = 'duel'  THEN 1 ELSE 0 END,
			CASE WHEN $3 = 'heist' THEN 1 ELSE 0 END,
			GREATEST($4, 0), LEAST($4, 0), $4)
		ON CONFLICT (username, channel) DO UPDATE SET
			slots_played  = gambling_stats.slots_played  + CASE WHEN $3 = 'slots' THEN 1 ELSE 0 END,
			flips_played  = gambling_stats.flips_played  + CASE WHEN $3 = 'flip'  THEN 1 ELSE 0 END,
			duels_played  = gambling_stats.duels_played  + CASE WHEN $3 = 'duel'  THEN 1 ELSE 0 END,
			heists_played = gambling_stats.heists_played + CASE WHEN $3 = 'heist' THEN 1 ELSE 0 END,
			biggest_win   = GREATEST(gambling_stats.biggest_win, $4),
			biggest_loss  = LEAST(gambling_stats.biggest_loss, $4),
			net           = gambling_stats.net + $4,
			updated_at    = NOW()
	`, username, channel, game, net)
	if err != nil {
		return fmt.Errorf("ошибка записи статистики игр: %w", err)
	}
	return nil
}

// GetStats возвращает статистику игрока (nil, если ещё не играл).
func (r *Repository) GetStats(ctx context.Context, username, channel string) (*Stats, error) {
	var s Stats
	err := r.db.QueryRow(ctx, `
		SELECT username, channel, slots_played, flips_played, duels_played, heists_played,
		       biggest_win, biggest_loss, net, created_at, updated_at
		FROM gambling_stats
		WHERE username = $1 AND channel = $2
	`, username, channel).Scan(
		&s.Username, &s.Channel, &s.SlotsPlayed, &s.FlipsPlayed, &s.DuelsPlayed, &s.HeistsPlayed,
		&s.BiggestWin, &s.BiggestLoss, &s.Net, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения статистики игр: %w", err)
	}
	return &s, nil
}

// CreateChallenge создаёт вызов на дуэль. Частичный уникальный индекс
// по (challenger, target, channel) WHERE status = 'pending' не даёт
// навесить второй вызов той же паре.
func (r *Repository) CreateChallenge(ctx context.Context, c *Challenge) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO duel_challenges (challenger, target, channel, wager, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.Challenger, c.Target, c.Channel, c.Wager, ChallengePending, c.ExpiresAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, common.ErrChallengePending
		}
		return 0, fmt.Errorf("ошибка создания вызова: %w", err)
	}
	return id, nil
}

// GetPending возвращает висящий вызов от challenger к target в канале.
func (r *Repository) GetPending(ctx context.Context, challenger, target, channel string) (*Challenge, error) {
	var c Challenge
	err := r.db.QueryRow(ctx, `
		SELECT id, challenger, target, channel, wager, status, expires_at, created_at
		FROM duel_challenges
		WHERE challenger = $1 AND target = $2 AND channel = $3 AND status = $4
	`, challenger, target, channel, ChallengePending).Scan(
		&c.ID, &c.Challenger, &c.Target, &c.Channel, &c.Wager, &c.Status, &c.ExpiresAt, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска вызова: %w", err)
	}
	return &c, nil
}

// HasPendingFrom проверяет, есть ли у challenger висящий вызов в канале.
func (r *Repository) HasPendingFrom(ctx context.Context, challenger, channel string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM duel_challenges
			WHERE challenger = $1 AND channel = $2 AND status = $3
		)
	`, challenger, channel, ChallengePending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки вызова: %w", err)
	}
	return exists, nil
}

// ResolveChallenge переводит вызов из pending в конечный статус.
// Условный UPDATE: при гонке (принятие против истечения) выигрывает
// ровно одна сторона. false — вызов уже не pending.
func (r *Repository) ResolveChallenge(ctx context.Context, id int64, status string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE duel_challenges SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, status, ChallengePending)
	if err != nil {
		return false, fmt.Errorf("ошибка завершения вызова: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// ExpireDue помечает истёкшие вызовы и возвращает их для возврата ставок.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]*Challenge, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE duel_challenges SET status = $1, resolved_at = NOW()
		WHERE status = $2 AND expires_at <= $3
		RETURNING id, challenger, target, channel, wager, status, expires_at, created_at
	`, ChallengeExpired, ChallengePending, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка истечения вызовов: %w", err)
	}
	defer rows.Close()

	var out []*Challenge
	for rows.Next() {
		var c Challenge
		if err := rows.Scan(
			&c.ID, &c.Challenger, &c.Target, &c.Channel, &c.Wager, &c.Status, &c.ExpiresAt, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования вызова: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// CountDailyGames считает игры пользователя с начала суток
// по журналу ставок (для дневного лимита).
func (r *Repository) CountDailyGames(ctx context.Context, username, channel string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE username = $1 AND channel = $2 AND tx_type = 'gamble_wager' AND created_at >= $3
	`, username, channel, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта игр за день: %w", err)
	}
	return count, nil
}

// isUniqueViolation распознаёт нарушение уникального индекса Postgres.
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
