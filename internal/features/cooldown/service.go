// Package cooldown — service.go обёртка над репозиторием с текущим временем.
package cooldown

import (
	"context"
	"time"
)

// Service предоставляет лимитер остальным компонентам.
type Service struct {
	repo *Repository
	now  func() time.Time // подменяется в тестах
}

// NewService создаёт сервис лимитера.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Allow проверяет и учитывает срабатывание для (username, channel, triggerID).
// Составные trigger_id вида "mention.sender.target" выражают лимиты на пару.
func (s *Service) Allow(ctx context.Context, username, channel, triggerID string, limit Limit) (bool, error) {
	return s.repo.Allow(ctx, username, channel, triggerID, limit, s.now())
}
