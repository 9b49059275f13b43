// Package admin — service.go содержит аутентификацию по Argon2id
// и исполнение директив: выдача/изъятие/установка баланса, баны,
// события-множители.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/cinema-bot/internal/common"
	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/events"
	"serotonyl.ru/cinema-bot/internal/features/ledger"
)

// Ledger — нужная директивам часть леджера.
type Ledger interface {
	Credit(ctx context.Context, e ledger.Entry) (int64, error)
	Debit(ctx context.Context, e ledger.Entry) (int64, error)
	SetBalance(ctx context.Context, e ledger.Entry) (int64, error)
	SetBanned(ctx context.Context, username, channel string, banned bool) error
}

// Multipliers — управление событиями-множителями.
type Multipliers interface {
	StartEvent(channel, name string, factor float64, duration time.Duration, hidden bool) error
	StopEvent(channel, name string) bool
}

// Service аутентифицирует администраторов и исполняет директивы.
// Сессии и счётчик неудачных попыток живут в памяти: после рестарта
// администратор логинится заново.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	ledger Ledger
	mult   Multipliers

	now      func() time.Time
	sessions map[string]*Session
	attempts map[string][]time.Time
}

// NewService создаёт сервис админ-директив.
func NewService(cfg *config.Config, l Ledger, m Multipliers) *Service {
	return &Service{
		cfg:      cfg,
		ledger:   l,
		mult:     m,
		now:      time.Now,
		sessions: make(map[string]*Session),
		attempts: make(map[string][]time.Time),
	}
}

// UpdateConfig применяет новую конфигурацию (список админов, хеш пароля).
func (s *Service) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.cfg.AdminUsers {
		if a == username {
			return true
		}
	}
	return false
}

// Authenticate проверяет пароль и открывает сессию на 24 часа.
// Три неудачные попытки за час — блокировка до конца окна.
func (s *Service) Authenticate(username, password string) error {
	if !s.IsAdmin(username) {
		return common.ErrNotAdmin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	recent := s.attempts[username][:0]
	for _, t := range s.attempts[username] {
		if now.Sub(t) < attemptWindow {
			recent = append(recent, t)
		}
	}
	s.attempts[username] = recent
	if len(recent) >= maxAttempts {
		return common.ErrTooManyAttempts
	}

	if !verifyArgon2id(password, s.cfg.AdminPasswordHash) {
		s.attempts[username] = append(s.attempts[username], now)
		log.WithField("username", username).Warn("Неудачная попытка входа администратора")
		return common.ErrWrongPassword
	}

	delete(s.attempts, username)
	s.sessions[username] = &Session{
		Username:  username,
		Token:     generateSecureToken(),
		ExpiresAt: now.Add(sessionTTL),
	}
	log.WithField("username", username).Info("Администратор вошёл")
	return nil
}

// HasSession проверяет активную сессию (истёкшая удаляется на месте).
func (s *Service) HasSession(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return false
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, username)
		return false
	}
	return true
}

// Execute выполняет директиву. Директива без активной сессии проходит
// аутентификацию по паролю из самой директивы. Возвращает текст
// подтверждения; сентинельные ошибки (не админ, неверный пароль,
// нехватка средств) поднимаются как есть.
func (s *Service) Execute(ctx context.Context, d events.AdminDirective) (string, error) {
	if !s.HasSession(d.Admin) {
		if err := s.Authenticate(d.Admin, d.Password); err != nil {
			return "", err
		}
	}

	switch d.Kind {
	case events.DirectiveGrant:
		balance, err := s.ledger.Credit(ctx, ledger.Entry{
			Username:    d.Target,
			Channel:     d.Channel,
			Amount:      d.Amount,
			Type:        ledger.TxTypeAdminGive,
			Reason:      fmt.Sprintf("Выдано администратором %s", d.Admin),
			RelatedUser: d.Admin,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %s получает %s, на счету %s",
			d.Target, common.FormatBalance(d.Amount), common.FormatBalance(balance)), nil

	case events.DirectiveDeduct:
		balance, err := s.ledger.Debit(ctx, ledger.Entry{
			Username:    d.Target,
			Channel:     d.Channel,
			Amount:      d.Amount,
			Type:        ledger.TxTypeAdminTake,
			Reason:      fmt.Sprintf("Изъято администратором %s", d.Admin),
			RelatedUser: d.Admin,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ У %s изъято %s, на счету %s",
			d.Target, common.FormatBalance(d.Amount), common.FormatBalance(balance)), nil

	case events.DirectiveSetBalance:
		balance, err := s.ledger.SetBalance(ctx, ledger.Entry{
			Username:    d.Target,
			Channel:     d.Channel,
			Amount:      d.Amount,
			Type:        ledger.TxTypeAdminSet,
			Reason:      fmt.Sprintf("Баланс установлен администратором %s", d.Admin),
			RelatedUser: d.Admin,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Баланс %s установлен: %s", d.Target, common.FormatBalance(balance)), nil

	case events.DirectiveBan:
		if err := s.ledger.SetBanned(ctx, d.Target, d.Channel, true); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %s исключён из экономики", d.Target), nil

	case events.DirectiveUnban:
		if err := s.ledger.SetBanned(ctx, d.Target, d.Channel, false); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %s возвращён в экономику", d.Target), nil

	case events.DirectiveStartEvent:
		if err := s.mult.StartEvent(d.Channel, d.EventName, d.Factor, d.Duration, d.Hidden); err != nil {
			return "", err
		}
		mins := int(d.Duration.Minutes())
		return fmt.Sprintf("✅ Событие «%s» запущено: ×%.2g на %d %s",
			d.EventName, d.Factor, mins, common.PluralizeMinutes(mins)), nil

	case events.DirectiveStopEvent:
		if !s.mult.StopEvent(d.Channel, d.EventName) {
			return fmt.Sprintf("⚠️ Событие «%s» не найдено", d.EventName), nil
		}
		return fmt.Sprintf("✅ Событие «%s» остановлено", d.EventName), nil

	default:
		return "", fmt.Errorf("неизвестная директива: %s", d.Kind)
	}
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
