// Package gambling — slots.go описывает таблицу выплат слотов и
// разрешение одного розыгрыша.
package gambling

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// PayoutEntry — строка таблицы выплат.
// Probability — вес строки; Multiplier — множитель ставки
// (0 — проигрыш, 1 — возврат ставки, >=50 — джекпот).
type PayoutEntry struct {
	Label       string
	Symbols     string
	Multiplier  float64
	Probability float64

	cumulative float64
}

// Джекпотом считается множитель от 50 и выше.
const jackpotMultiplier = 50.0

// PayoutTable — упорядоченная таблица выплат с накопленными
// вероятностями. Порядок строк фиксируется при создании, розыгрыш
// детерминирован относительно случайного числа.
type PayoutTable struct {
	entries []PayoutEntry
}

// DefaultPayoutEntries — таблица по умолчанию. Сумма вероятностей 1.0.
var DefaultPayoutEntries = []PayoutEntry{
	{Label: "Три семёрки", Symbols: "7️⃣7️⃣7️⃣", Multiplier: 50, Probability: 0.005},
	{Label: "Три алмаза", Symbols: "💎💎💎", Multiplier: 10, Probability: 0.02},
	{Label: "Три лимона", Symbols: "🍋🍋🍋", Multiplier: 3, Probability: 0.05},
	{Label: "Три вишни", Symbols: "🍒🍒🍒", Multiplier: 2, Probability: 0.10},
	{Label: "Две вишни", Symbols: "🍒🍒✖️", Multiplier: 1, Probability: 0.125},
	{Label: "Пусто", Symbols: "✖️✖️✖️", Multiplier: 0, Probability: 0.70},
}

// NewPayoutTable строит таблицу: считает накопленные вероятности в
// порядке объявления. Отклонение суммы от 1.0 больше чем на 1% —
// ошибка конфигурации, пишем в лог, но не падаем.
func NewPayoutTable(entries []PayoutEntry) *PayoutTable {
	t := &PayoutTable{entries: make([]PayoutEntry, len(entries))}
	copy(t.entries, entries)

	sum := 0.0
	for i := range t.entries {
		sum += t.entries[i].Probability
		t.entries[i].cumulative = sum
	}
	if math.Abs(sum-1.0) > 0.01 {
		log.WithField("sum", sum).Warn("Сумма вероятностей таблицы слотов далека от 1.0")
	}
	return t
}

// Resolve находит строку для случайного числа r ∈ [0, 1): первая
// строка, чья накопленная вероятность >= r (граница включительно).
// r за пределами суммы попадает в последнюю строку.
func (t *PayoutTable) Resolve(r float64) PayoutEntry {
	for _, e := range t.entries {
		if r <= e.cumulative {
			return e
		}
	}
	return t.entries[len(t.entries)-1]
}

// Payout считает выплату по ставке. Округление вниз, валюта целая.
func (e PayoutEntry) Payout(wager int64) int64 {
	return int64(math.Floor(float64(wager) * e.Multiplier))
}

// IsJackpot сообщает, достойна ли строка публичного объявления.
func (e PayoutEntry) IsJackpot() bool {
	return e.Multiplier >= jackpotMultiplier
}
