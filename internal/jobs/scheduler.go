// Package jobs управляет фоновыми задачами: cron-расписание (фоновые
// награды за просмотр, ежедневный пересчёт рангов) и частая уборка
// (просроченные дуэли, созревшие ограбления).
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/events"
	"serotonyl.ru/cinema-bot/internal/features/channelstate"
	"serotonyl.ru/cinema-bot/internal/features/gambling"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron *cron.Cron
	cfg  *config.Config

	ledgerService  *ledger.Service
	gamblingEngine *gambling.Service
	state          *channelstate.Manager
	notifier       events.Notifier

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScheduler создаёт планировщик в часовом поясе из конфигурации.
func NewScheduler(
	cfg *config.Config,
	ledgerService *ledger.Service,
	gamblingEngine *gambling.Service,
	state *channelstate.Manager,
	notifier events.Notifier,
) *Scheduler {
	return &Scheduler{
		cron:           cron.New(cron.WithLocation(cfg.Location())),
		cfg:            cfg,
		ledgerService:  ledgerService,
		gamblingEngine: gamblingEngine,
		state:          state,
		notifier:       notifier,
		stopCh:         make(chan struct{}),
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Фоновые награды за совместный просмотр
	if s.cfg.AmbientRewardAmount > 0 {
		s.cron.AddFunc("@every "+s.cfg.AmbientRewardInterval.String(), func() {
			log.Debug("[CRON] Фоновые награды за просмотр")
			s.ambientRewards(ctx)
		})
	}

	// Ежедневный пересчёт рангов в 00:30
	s.cron.AddFunc("30 0 * * *", func() {
		log.Info("[CRON] Ежедневный пересчёт рангов")
		if err := s.ledgerService.RecomputeRanks(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка пересчёта рангов")
		}
	})

	s.cron.Start()

	// Уборка крутится чаще, чем умеет cron: свой тикер
	go s.sweepLoop(ctx)

	log.WithField("sweep_interval", s.cfg.SweepInterval).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и уборку.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// ambientRewards начисляет пленки всем присутствующим в каналах,
// где сейчас что-то играет. Забаненные и игнорируемые не получают.
func (s *Scheduler) ambientRewards(ctx context.Context) {
	ignored := make(map[string]struct{}, len(s.cfg.IgnoredUsers))
	for _, u := range s.cfg.IgnoredUsers {
		ignored[u] = struct{}{}
	}

	for _, channel := range s.state.ChannelsWithMedia() {
		for _, username := range s.state.Present(channel) {
			if _, skip := ignored[username]; skip {
				continue
			}
			banned, err := s.ledgerService.IsBanned(ctx, username, channel)
			if err != nil {
				log.WithError(err).WithField("username", username).Warn("Проверка бана не прошла")
				continue
			}
			if banned {
				continue
			}
			_, err = s.ledgerService.Credit(ctx, ledger.Entry{
				Username: username,
				Channel:  channel,
				Amount:   s.cfg.AmbientRewardAmount,
				Type:     ledger.TxTypeAmbient,
				Reason:   "Награда за совместный просмотр",
			})
			if err != nil {
				log.WithError(err).WithFields(log.Fields{
					"username": username, "channel": channel,
				}).Error("Фоновая награда не начислена")
			}
		}
	}
}

// sweepLoop закрывает просроченные дуэли и созревшие ограбления.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	expired, err := s.gamblingEngine.ExpireChallenges(ctx)
	if err != nil {
		log.WithError(err).Error("Уборка дуэлей не прошла")
	}
	for _, c := range expired {
		s.notifier.SendPrivate(c.Challenger, "⚔️ Вызов "+c.Target+" истёк, ставка возвращена")
	}

	for _, res := range s.gamblingEngine.ResolveDueHeists(ctx) {
		s.notifier.SendChannel(res.Channel, res.Message)
	}
}
