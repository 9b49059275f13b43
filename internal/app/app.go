// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, фильтры
// и собирает всё в диспетчер и планировщик.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/bot"
	"serotonyl.ru/cinema-bot/internal/bot/filters"
	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/db/postgres"
	"serotonyl.ru/cinema-bot/internal/events"
	"serotonyl.ru/cinema-bot/internal/features/admin"
	"serotonyl.ru/cinema-bot/internal/features/channelstate"
	"serotonyl.ru/cinema-bot/internal/features/cooldown"
	"serotonyl.ru/cinema-bot/internal/features/gambling"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
	"serotonyl.ru/cinema-bot/internal/features/multiplier"
	"serotonyl.ru/cinema-bot/internal/features/triggers"
	"serotonyl.ru/cinema-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool

	cfg *config.Config

	LedgerService  *ledger.Service
	TriggerService *triggers.Service
	GamblingEngine *gambling.Service
	Multipliers    *multiplier.Service
	AdminService   *admin.Service
	State          *channelstate.Manager
	UserFilter     *filters.UserFilter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config, notifier events.Notifier) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Репозитории ===
	ledgerRepo := ledger.NewRepository(pool)
	cooldownRepo := cooldown.NewRepository(pool)
	gamblingRepo := gambling.NewRepository(pool)

	// === 3. Сервисы ===
	state := channelstate.NewManager()
	ledgerService := ledger.NewService(ledgerRepo, cfg.Location())
	cooldownService := cooldown.NewService(cooldownRepo)
	multipliers := multiplier.NewService(cfg)
	triggerService := triggers.NewService(cfg, ledgerService, cooldownService, multipliers, state)
	gamblingEngine := gambling.NewService(cfg, ledgerService, gamblingRepo, cooldownService)
	adminService := admin.NewService(cfg, ledgerService, multipliers)

	// === 4. Фильтры и диспетчер ===
	userFilter := filters.NewUserFilter(cfg)
	b := bot.New(
		cfg, notifier,
		ledgerService, triggerService, gamblingEngine, multipliers, adminService,
		state, userFilter,
	)

	// === 5. Планировщик задач ===
	scheduler := jobs.NewScheduler(cfg, ledgerService, gamblingEngine, state, notifier)

	return &App{
		Bot:            b,
		Scheduler:      scheduler,
		DB:             pool,
		cfg:            cfg,
		LedgerService:  ledgerService,
		TriggerService: triggerService,
		GamblingEngine: gamblingEngine,
		Multipliers:    multipliers,
		AdminService:   adminService,
		State:          state,
		UserFilter:     userFilter,
	}, nil
}

// UpdateConfig раздаёт новую конфигурацию всем сервисам.
// Операции в полёте продолжают работать со старым снимком.
func (a *App) UpdateConfig(cfg *config.Config) {
	a.cfg = cfg
	a.TriggerService.UpdateConfig(cfg)
	a.GamblingEngine.UpdateConfig(cfg)
	a.Multipliers.UpdateConfig(cfg)
	a.AdminService.UpdateConfig(cfg)
	a.UserFilter.UpdateConfig(cfg)
	log.Info("Конфигурация перечитана")
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.InitMigrations(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Ledger},
		{2, migration002Cooldown},
		{3, migration003Gambling},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Ledger = `
CREATE TABLE IF NOT EXISTS accounts (
    username TEXT NOT NULL,
    channel TEXT NOT NULL,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    lifetime_earned BIGINT NOT NULL DEFAULT 0,
    lifetime_spent BIGINT NOT NULL DEFAULT 0,
    lifetime_gambled_in BIGINT NOT NULL DEFAULT 0,
    lifetime_gambled_out BIGINT NOT NULL DEFAULT 0,
    rank_name TEXT NOT NULL DEFAULT '',
    economy_banned BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (username, channel)
);
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL,
    channel TEXT NOT NULL,
    amount BIGINT NOT NULL,
    tx_type VARCHAR(50) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    trigger_id TEXT NOT NULL DEFAULT '',
    related_user TEXT NOT NULL DEFAULT '',
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(username, channel, id DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(username, channel, tx_type, created_at);
`

var migration002Cooldown = `
CREATE TABLE IF NOT EXISTS cooldown_windows (
    username TEXT NOT NULL,
    channel TEXT NOT NULL,
    trigger_id TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    window_start TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (username, channel, trigger_id)
);
`

var migration003Gambling = `
CREATE TABLE IF NOT EXISTS gambling_stats (
    username TEXT NOT NULL,
    channel TEXT NOT NULL,
    slots_played INTEGER NOT NULL DEFAULT 0,
    flips_played INTEGER NOT NULL DEFAULT 0,
    duels_played INTEGER NOT NULL DEFAULT 0,
    heists_played INTEGER NOT NULL DEFAULT 0,
    biggest_win BIGINT NOT NULL DEFAULT 0,
    biggest_loss BIGINT NOT NULL DEFAULT 0,
    net BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (username, channel)
);
CREATE TABLE IF NOT EXISTS duel_challenges (
    id BIGSERIAL PRIMARY KEY,
    challenger TEXT NOT NULL,
    target TEXT NOT NULL,
    channel TEXT NOT NULL,
    wager BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_duel_pending
    ON duel_challenges(challenger, target, channel) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_duel_expiry ON duel_challenges(expires_at) WHERE status = 'pending';
`
