// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки леджера (пленки, начисления, списания)
var (
	// ErrInsufficientBalance — недостаточно пленок на счёте
	ErrInsufficientBalance = errors.New("недостаточно пленок на счёте")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrAccountNotFound — счёт не найден в базе
	ErrAccountNotFound = errors.New("счёт не найден")
)

// Ошибки азартных игр. Отказы гейта (отключено, бан, молодой счёт)
// не ошибки, а Rejection с текстом — здесь только то, на чём
// строится control flow репозиториев.
var (
	// ErrChallengeNotFound — вызов на дуэль не найден или уже разрешён
	ErrChallengeNotFound = errors.New("вызов не найден")
	// ErrChallengePending — у пары уже есть активный вызов
	ErrChallengePending = errors.New("вызов этому игроку уже отправлен")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrBadMultiplier — недопустимый множитель события
	ErrBadMultiplier = errors.New("множитель должен быть в диапазоне (1.0, 10.0]")
	// ErrBadDuration — недопустимая длительность события
	ErrBadDuration = errors.New("длительность должна быть от 1 до 1440 минут")
)
