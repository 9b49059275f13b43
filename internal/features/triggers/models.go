// Package triggers реализует пайплайн начисления наград за поведение в чате.
// models.go описывает виды условий, конфигурацию триггеров и результат награды.
package triggers

import (
	"time"

	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/features/cooldown"
)

// Kind — закрытое перечисление видов условий.
// Новый вид добавляется сюда и в evaluate(); неизвестный вид
// трактуется как «условие не выполнено» (fail-closed).
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage      // любое сообщение (дробная награда)
	KindLongMessage  // сообщение длиннее порога
	KindLaugh        // смех — награждает ПРЕДЫДУЩЕГО оратора
	KindKudos        // благодарность — награждает НАЗВАННОГО пользователя
	KindMention      // упоминание @username, лимит на пару (отправитель, цель)
	KindMediaComment // комментарий во время медиа, лимит на медиа
)

// String нужен для логов и ключей кулдауна.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindLongMessage:
		return "longmessage"
	case KindLaugh:
		return "laugh"
	case KindKudos:
		return "kudos"
	case KindMention:
		return "mention"
	case KindMediaComment:
		return "mediacomment"
	default:
		return "unknown"
	}
}

// Trigger — одно настраиваемое правило награды.
type Trigger struct {
	ID      string
	Kind    Kind
	Enabled bool
	Reward  float64 // может быть дробной: целая часть начисляется, остаток копится

	// Лимит фиксированного окна; MaxCount == 0 — без лимита
	Limit cooldown.Limit

	// Параметры отдельных видов
	MinLength   int // KindLongMessage
	PerMediaCap int // KindMediaComment
}

// Award — результат одного сработавшего триггера.
// Blocked != "" означает, что награда не начислена (кулдаун, самонаграда и т.п.).
type Award struct {
	TriggerID  string
	Username   string // получатель (для реактивных — не отправитель)
	Amount     int64
	NewBalance int64
	Blocked    string
}

// Причины блокировки награды
const (
	BlockedCooldown = "cooldown"
	BlockedSelf     = "self"
	BlockedIgnored  = "ignored"
	BlockedMediaCap = "media_cap"
)

// TriggersFromConfig собирает набор правил из конфигурации.
// Порядок фиксированный: триггеры оцениваются независимо,
// но журнал и аналитика читаются приятнее в стабильном порядке.
func TriggersFromConfig(cfg *config.Config) []Trigger {
	return []Trigger{
		{
			ID:      "message",
			Kind:    KindMessage,
			Enabled: cfg.TriggerMessageReward > 0,
			Reward:  cfg.TriggerMessageReward,
			Limit:   cooldown.Limit{MaxCount: cfg.TriggerMessageHourlyCap, Window: time.Hour},
		},
		{
			ID:        "longmessage",
			Kind:      KindLongMessage,
			Enabled:   cfg.TriggerLongMessageReward > 0,
			Reward:    cfg.TriggerLongMessageReward,
			Limit:     cooldown.Limit{MaxCount: cfg.TriggerLongMessageHourlyCap, Window: time.Hour},
			MinLength: cfg.TriggerLongMessageMinLen,
		},
		{
			ID:      "laugh",
			Kind:    KindLaugh,
			Enabled: cfg.TriggerLaughReward > 0,
			Reward:  cfg.TriggerLaughReward,
			Limit:   cooldown.Limit{MaxCount: 10, Window: time.Hour},
		},
		{
			ID:      "kudos",
			Kind:    KindKudos,
			Enabled: cfg.TriggerKudosReward > 0,
			Reward:  cfg.TriggerKudosReward,
			Limit:   cooldown.Limit{MaxCount: 2, Window: 24 * time.Hour},
		},
		{
			ID:      "mention",
			Kind:    KindMention,
			Enabled: cfg.TriggerMentionReward > 0,
			Reward:  cfg.TriggerMentionReward,
			Limit:   cooldown.Limit{MaxCount: 1, Window: 24 * time.Hour},
		},
		{
			ID:          "mediacomment",
			Kind:        KindMediaComment,
			Enabled:     cfg.TriggerMediaCommentReward > 0,
			Reward:      cfg.TriggerMediaCommentReward,
			PerMediaCap: cfg.TriggerMediaCommentCap,
		},
	}
}
