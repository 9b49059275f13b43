// Package ledger — ranks.go определяет ранги по сумме заработанного.
package ledger

// Rank — порог ранга. Ранг присваивается по lifetime_earned.
type Rank struct {
	Name string
	Min  int64
}

// DefaultRanks — ранги от младшего к старшему.
// Порядок важен: берётся последний ранг, чей порог достигнут.
var DefaultRanks = []Rank{
	{Name: "Зритель", Min: 0},
	{Name: "Киноман", Min: 500},
	{Name: "Критик", Min: 2500},
	{Name: "Режиссёр", Min: 10000},
	{Name: "Продюсер", Min: 50000},
}

// RankFor возвращает имя ранга для суммы заработанного.
func RankFor(lifetimeEarned int64) string {
	name := DefaultRanks[0].Name
	for _, r := range DefaultRanks {
		if lifetimeEarned >= r.Min {
			name = r.Name
		}
	}
	return name
}
