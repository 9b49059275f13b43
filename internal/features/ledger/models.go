// Package ledger управляет виртуальной валютой «пленки».
// models.go описывает структуры для счетов и журнала транзакций.
package ledger

import (
	"encoding/json"
	"time"
)

// Account представляет счёт пользователя в конкретном канале.
// Ключ — пара (username, channel). Счёт создаётся лениво при первом
// начислении и никогда не удаляется.
type Account struct {
	Username           string    `db:"username"`
	Channel            string    `db:"channel"`
	Balance            int64     `db:"balance"`              // Текущий баланс (всегда >= 0)
	LifetimeEarned     int64     `db:"lifetime_earned"`      // Сколько всего заработано
	LifetimeSpent      int64     `db:"lifetime_spent"`       // Сколько всего потрачено
	LifetimeGambledIn  int64     `db:"lifetime_gambled_in"`  // Сумма всех ставок
	LifetimeGambledOut int64     `db:"lifetime_gambled_out"` // Сумма всех выплат
	RankName           string    `db:"rank_name"`            // Кэшированное имя ранга
	EconomyBanned      bool      `db:"economy_banned"`       // Исключён из экономики
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// Transaction представляет одну запись журнала. Журнал append-only:
// записи не изменяются и не удаляются, сумма amount по счёту равна балансу.
type Transaction struct {
	ID          int64           `db:"id"`
	Username    string          `db:"username"`
	Channel     string          `db:"channel"`
	Amount      int64           `db:"amount"` // Со знаком: + начисление, - списание
	Type        string          `db:"tx_type"`
	Reason      string          `db:"reason"`
	TriggerID   string          `db:"trigger_id"`
	RelatedUser string          `db:"related_user"`
	Metadata    json.RawMessage `db:"metadata"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Допустимые типы транзакций
const (
	TxTypeTrigger      = "trigger_award" // Награда за триггер
	TxTypeAmbient      = "ambient"       // Фоновая награда за просмотр
	TxTypeGambleWager  = "gamble_wager"  // Ставка (эскроу)
	TxTypeGamblePayout = "gamble_payout" // Выплата выигрыша
	TxTypeGambleRefund = "gamble_refund" // Возврат ставки
	TxTypeAdminGive    = "admin_give"    // Выдача админом
	TxTypeAdminTake    = "admin_take"    // Изъятие админом
	TxTypeAdminSet     = "admin_set"     // Установка баланса админом
)

// Entry — параметры одной операции начисления или списания.
// Amount всегда положительный; знак в журнале определяет операция.
type Entry struct {
	Username    string
	Channel     string
	Amount      int64
	Type        string
	Reason      string
	TriggerID   string
	RelatedUser string
	Metadata    json.RawMessage
}
