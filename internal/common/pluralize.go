// Package common — pluralize.go содержит вспомогательные функции
// для форматирования сумм пленок со знаком и разделителями.
package common

import "fmt"

// FormatFilmsAmount создаёт строку вида "+100 пленок" или "-50 пленок".
// Знак «+» или «-» добавляется автоматически.
func FormatFilmsAmount(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%d %s", amount, PluralizeFilms(amount))
	}
	return fmt.Sprintf("%d %s", amount, PluralizeFilms(amount))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Рекурсивно добавляем разделители
	rest := n / 1000
	last := n % 1000

	if rest > 0 {
		return fmt.Sprintf("%s %03d", FormatNumber(rest), last)
	}
	return fmt.Sprintf("%d", last)
}
