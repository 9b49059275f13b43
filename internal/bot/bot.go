// Package bot содержит главный модуль — диспетчер событий канала.
// bot.go принимает разобранные события от транспорта, прогоняет их
// через фильтры и пайплайн триггеров и маршрутизирует команды.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/bot/filters"
	"serotonyl.ru/cinema-bot/internal/bot/middleware"
	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/events"
	"serotonyl.ru/cinema-bot/internal/features/admin"
	"serotonyl.ru/cinema-bot/internal/features/channelstate"
	"serotonyl.ru/cinema-bot/internal/features/gambling"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
	"serotonyl.ru/cinema-bot/internal/features/multiplier"
	"serotonyl.ru/cinema-bot/internal/features/triggers"
)

// Bot — диспетчер: очередь событий, лимит параллелизма, маршрутизация.
type Bot struct {
	cfg      *config.Config
	notifier events.Notifier

	userFilter  *filters.UserFilter
	rateLimiter *middleware.RateLimiter

	ledgerService  *ledger.Service
	triggerService *triggers.Service
	gamblingEngine *gambling.Service
	multipliers    *multiplier.Service
	adminService   *admin.Service
	state          *channelstate.Manager

	parser *CommandParser

	// ограничитель параллелизма обработки событий
	inflight chan struct{}
	queue    chan any
}

// New создаёт диспетчер со всеми зависимостями.
func New(
	cfg *config.Config,
	notifier events.Notifier,
	ledgerService *ledger.Service,
	triggerService *triggers.Service,
	gamblingEngine *gambling.Service,
	multipliers *multiplier.Service,
	adminService *admin.Service,
	state *channelstate.Manager,
	userFilter *filters.UserFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		cfg:            cfg,
		notifier:       notifier,
		userFilter:     userFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.FloodLimitRequests, cfg.FloodLimitWindow),
		ledgerService:  ledgerService,
		triggerService: triggerService,
		gamblingEngine: gamblingEngine,
		multipliers:    multipliers,
		adminService:   adminService,
		state:          state,
		parser:         NewCommandParser(),
		inflight:       make(chan struct{}, maxInFlight),
		queue:          make(chan any, 256),
	}
}

// Submit ставит событие транспорта в очередь обработки.
// Блокируется при заполненной очереди: давление передаётся транспорту.
func (b *Bot) Submit(ev any) {
	b.queue <- ev
}

// Run запускает цикл обработки. Возвращается по отмене контекста.
func (b *Bot) Run(ctx context.Context) {
	log.WithField("max_inflight", cap(b.inflight)).Info("Диспетчер запущен и ожидает события...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Диспетчер останавливается (ctx done)...")
			b.rateLimiter.Close()
			return

		case ev := <-b.queue:
			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(ev any) {
				defer func() { <-b.inflight }()
				b.handleEvent(ctx, ev)
			}(ev)
		}
	}
}

// handleEvent обрабатывает одно событие.
func (b *Bot) handleEvent(ctx context.Context, ev any) {
	defer middleware.RecoverFromPanic()

	switch e := ev.(type) {
	case events.ChatMessage:
		b.handleMessage(ctx, e)
	case events.MediaChange:
		b.state.OnMediaChange(e.Channel, channelstate.Media{
			ID:           e.MediaID,
			Title:        e.Title,
			Duration:     e.Duration,
			StartedAt:    e.Timestamp,
			UsersAtStart: e.Users,
		})
	case events.Presence:
		if e.Joined {
			b.state.OnJoin(e.Channel, e.Username)
		} else {
			b.state.OnLeave(e.Channel, e.Username)
		}
	case events.AdminDirective:
		b.handleDirective(ctx, e)
	default:
		log.WithField("type", fmt.Sprintf("%T", ev)).Warn("Неизвестный тип события")
	}
}

// handleMessage прогоняет сообщение через фильтры, команды и триггеры.
func (b *Bot) handleMessage(ctx context.Context, msg events.ChatMessage) {
	middleware.LogMessage(msg)

	if !b.userFilter.CheckAccess(msg) {
		return
	}

	if !b.rateLimiter.Allow(msg.Username + "\x00" + msg.Channel) {
		log.WithField("username", msg.Username).Debug("rate limited")
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(msg.Text)
	if isCommand {
		b.routeCommand(ctx, msg, cmd, args)
		return
	}

	// Не команда — обычная болтовня, кормим пайплайн триггеров
	awards := b.triggerService.Evaluate(ctx, msg)
	for _, a := range awards {
		if a.Blocked != "" {
			log.WithFields(log.Fields{
				"trigger": a.TriggerID, "username": a.Username, "blocked": a.Blocked,
			}).Debug("Награда заблокирована")
			continue
		}
		log.WithFields(log.Fields{
			"trigger": a.TriggerID, "username": a.Username, "amount": a.Amount,
		}).Debug("Награда начислена")
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, msg events.ChatMessage, cmd string, args []string) {
	log.WithFields(log.Fields{"cmd": cmd, "args": args}).Debug("routing command")

	username, channel := msg.Username, msg.Channel

	switch cmd {
	case "помощь", "help":
		b.notifier.SendPrivate(username,
			"Команды: !пленки, !топ, !транзакции, !бонусы, !слоты <ставка>, !монетка <ставка>, "+
				"!дуэль <цель> <ставка>, !принять <вызвавший>, !отказ <вызвавший>, "+
				"!ограбление <ставка>, !вступить <ставка>, !статигры")

	case "пленки", "баланс":
		b.handleBalance(ctx, username, channel)

	case "топ":
		text, err := b.ledgerService.LeaderboardText(ctx, channel)
		if err != nil {
			b.replyError(username, err)
			return
		}
		b.notifier.SendChannel(channel, text)

	case "транзакции":
		text, err := b.ledgerService.HistoryText(ctx, username, channel)
		if err != nil {
			b.replyError(username, err)
			return
		}
		b.notifier.SendPrivate(username, text)

	case "бонусы":
		b.notifier.SendChannel(channel, b.multipliers.DisplayText(channel, b.state.Population(channel)))

	case "слоты":
		wager, ok := parseWager(args, 0)
		if !ok {
			b.notifier.SendPrivate(username, "🎰 Использование: !слоты <ставка>")
			return
		}
		out, rej, err := b.gamblingEngine.PlaySlots(ctx, username, channel, wager)
		b.deliverOutcome(username, channel, out, rej, err)

	case "монетка":
		wager, ok := parseWager(args, 0)
		if !ok {
			b.notifier.SendPrivate(username, "🪙 Использование: !монетка <ставка>")
			return
		}
		out, rej, err := b.gamblingEngine.PlayFlip(ctx, username, channel, wager)
		b.deliverOutcome(username, channel, out, rej, err)

	case "дуэль":
		if len(args) < 2 {
			b.notifier.SendPrivate(username, "⚔️ Использование: !дуэль <цель> <ставка>")
			return
		}
		target := strings.TrimPrefix(args[0], "@")
		wager, ok := parseWager(args, 1)
		if !ok {
			b.notifier.SendPrivate(username, "⚔️ Использование: !дуэль <цель> <ставка>")
			return
		}
		c, rej, err := b.gamblingEngine.CreateChallenge(ctx, username, target, channel, wager)
		if b.replyRejection(username, rej, err) {
			return
		}
		b.notifier.SendChannel(channel,
			"⚔️ "+username+" вызывает "+target+" на дуэль, ставка "+common.FormatBalance(c.Wager)+
				". Ответ: !принять "+username+" или !отказ "+username)

	case "принять":
		if len(args) < 1 {
			b.notifier.SendPrivate(username, "⚔️ Использование: !принять <вызвавший>")
			return
		}
		res, rej, err := b.gamblingEngine.AcceptChallenge(ctx, username, strings.TrimPrefix(args[0], "@"), channel)
		if b.replyRejection(username, rej, err) {
			return
		}
		b.notifier.SendChannel(channel, res.Message)

	case "отказ":
		if len(args) < 1 {
			b.notifier.SendPrivate(username, "⚔️ Использование: !отказ <вызвавший>")
			return
		}
		challenger := strings.TrimPrefix(args[0], "@")
		rej, err := b.gamblingEngine.DeclineChallenge(ctx, username, challenger, channel)
		if b.replyRejection(username, rej, err) {
			return
		}
		b.notifier.SendChannel(channel, "⚔️ "+username+" отклоняет вызов, ставка возвращена "+challenger)

	case "ограбление":
		wager, ok := parseWager(args, 0)
		if !ok {
			b.notifier.SendPrivate(username, "🏦 Использование: !ограбление <ставка>")
			return
		}
		h, rej, err := b.gamblingEngine.StartHeist(ctx, username, channel, wager)
		if b.replyRejection(username, rej, err) {
			return
		}
		b.notifier.SendChannel(channel,
			"🏦 "+username+" собирает команду на дело! Вход: !вступить <ставка>, сбор до "+
				common.FormatDateTime(h.Deadline, b.cfg.Location()))

	case "вступить":
		wager, ok := parseWager(args, 0)
		if !ok {
			b.notifier.SendPrivate(username, "🏦 Использование: !вступить <ставка>")
			return
		}
		rej, err := b.gamblingEngine.JoinHeist(ctx, username, channel, wager)
		if b.replyRejection(username, rej, err) {
			return
		}
		b.notifier.SendChannel(channel, "🏦 "+username+" в деле!")

	case "статигры":
		text, err := b.gamblingEngine.StatsText(ctx, username, channel)
		if err != nil {
			b.replyError(username, err)
			return
		}
		b.notifier.SendPrivate(username, text)
	}
}

// handleBalance отвечает на запрос баланса.
func (b *Bot) handleBalance(ctx context.Context, username, channel string) {
	acc, err := b.ledgerService.GetAccount(ctx, username, channel)
	if errors.Is(err, common.ErrAccountNotFound) {
		b.notifier.SendPrivate(username, "💰 У тебя пока 0 пленок — счёт появится с первой наградой")
		return
	}
	if err != nil {
		b.replyError(username, err)
		return
	}

	text := "💰 На счету " + common.FormatBalance(acc.Balance)
	if acc.RankName != "" {
		text += " | Ранг: " + acc.RankName
	}
	b.notifier.SendPrivate(username, text)
}

// handleDirective исполняет админ-директиву и отвечает в личку.
func (b *Bot) handleDirective(ctx context.Context, d events.AdminDirective) {
	text, err := b.adminService.Execute(ctx, d)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"admin": d.Admin, "kind": string(d.Kind),
		}).Warn("Директива не выполнена")
		b.notifier.SendPrivate(d.Admin, "❌ "+userErrorText(err))
		return
	}
	b.notifier.SendPrivate(d.Admin, text)
}

// deliverOutcome отправляет результат одиночной игры: джекпоты в канал,
// остальное в личку.
func (b *Bot) deliverOutcome(username, channel string, out *gambling.Outcome, rej *gambling.Rejection, err error) {
	if b.replyRejection(username, rej, err) {
		return
	}
	if out.Announce {
		b.notifier.SendChannel(channel, out.Message)
	} else {
		b.notifier.SendPrivate(username, out.Message)
	}
}

// replyRejection отвечает на отказ или ошибку. true — дальше не идти.
func (b *Bot) replyRejection(username string, rej *gambling.Rejection, err error) bool {
	if err != nil {
		b.replyError(username, err)
		return true
	}
	if rej != nil {
		b.notifier.SendPrivate(username, rej.Message)
		return true
	}
	return false
}

func (b *Bot) replyError(username string, err error) {
	log.WithError(err).WithField("username", username).Error("Ошибка обработки команды")
	b.notifier.SendPrivate(username, "❌ "+userErrorText(err))
}

// userErrorText переводит сентинельные ошибки в текст для пользователя.
func userErrorText(err error) string {
	switch {
	case errors.Is(err, common.ErrInsufficientBalance):
		return "Не хватает пленок"
	case errors.Is(err, common.ErrAccountNotFound):
		return "Счёт не найден"
	case errors.Is(err, common.ErrNotAdmin):
		return "Ты не администратор"
	case errors.Is(err, common.ErrWrongPassword):
		return "Неверный пароль"
	case errors.Is(err, common.ErrTooManyAttempts):
		return "Слишком много попыток, подожди час"
	case errors.Is(err, common.ErrBadMultiplier):
		return "Множитель должен быть в диапазоне (1, 10]"
	case errors.Is(err, common.ErrBadDuration):
		return "Длительность от 1 минуты до суток"
	case errors.Is(err, common.ErrInvalidAmount):
		return "Сумма должна быть положительной"
	default:
		return "Что-то пошло не так, попробуй позже"
	}
}

// parseWager достаёт ставку из args[idx].
func parseWager(args []string, idx int) (int64, bool) {
	if len(args) <= idx {
		return 0, false
	}
	wager, err := strconv.ParseInt(args[idx], 10, 64)
	if err != nil || wager <= 0 {
		return 0, false
	}
	return wager, true
}

// CommandParser парсит русские команды с префиксами !, . и /
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	text = strings.TrimSpace(text)
	parts := strings.Fields(text)

	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
