package bot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/cinema-bot/internal/common"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("!слоты 100")
	assert.True(t, ok)
	assert.Equal(t, "слоты", cmd)
	assert.Equal(t, []string{"100"}, args)

	// Все три префикса равнозначны
	for _, text := range []string{".пленки", "/пленки", "!пленки"} {
		cmd, args, ok = p.ParseCommand(text)
		assert.True(t, ok, text)
		assert.Equal(t, "пленки", cmd)
		assert.Nil(t, args)
	}

	// Команда приводится к нижнему регистру
	cmd, _, ok = p.ParseCommand("!ТОП")
	assert.True(t, ok)
	assert.Equal(t, "топ", cmd)

	// Пробелы вокруг не мешают
	cmd, args, ok = p.ParseCommand("  !дуэль  @vasya   100  ")
	assert.True(t, ok)
	assert.Equal(t, "дуэль", cmd)
	assert.Equal(t, []string{"@vasya", "100"}, args)

	// Не команды
	_, _, ok = p.ParseCommand("просто сообщение")
	assert.False(t, ok)
	_, _, ok = p.ParseCommand("")
	assert.False(t, ok)
	_, _, ok = p.ParseCommand("!")
	assert.False(t, ok)
	_, _, ok = p.ParseCommand("!   ")
	assert.False(t, ok)
}

func TestParseWager(t *testing.T) {
	w, ok := parseWager([]string{"100"}, 0)
	assert.True(t, ok)
	assert.Equal(t, int64(100), w)

	_, ok = parseWager([]string{"@vasya", "50"}, 1)
	assert.True(t, ok)

	// Нет аргумента, не число, ноль, отрицательная
	_, ok = parseWager(nil, 0)
	assert.False(t, ok)
	_, ok = parseWager([]string{"сто"}, 0)
	assert.False(t, ok)
	_, ok = parseWager([]string{"0"}, 0)
	assert.False(t, ok)
	_, ok = parseWager([]string{"-5"}, 0)
	assert.False(t, ok)
}

func TestUserErrorText(t *testing.T) {
	assert.Equal(t, "Не хватает пленок", userErrorText(common.ErrInsufficientBalance))
	assert.Equal(t, "Счёт не найден", userErrorText(common.ErrAccountNotFound))
	assert.Equal(t, "Неверный пароль", userErrorText(common.ErrWrongPassword))

	// Внутренние ошибки наружу не протекают
	text := userErrorText(errors.New("pq: deadlock detected"))
	assert.NotContains(t, text, "deadlock")
}
