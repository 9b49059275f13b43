// Package filters отсеивает события, которые ядро обрабатывать не должно.
package filters

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/config"
	"serotonyl.ru/cinema-bot/internal/events"
)

// UserFilter отбрасывает сообщения ботов и игнорируемых пользователей
// до того, как они дойдут до пайплайна.
type UserFilter struct {
	mu      sync.RWMutex
	ignored map[string]struct{}
}

func NewUserFilter(cfg *config.Config) *UserFilter {
	f := &UserFilter{}
	f.UpdateConfig(cfg)
	return f
}

// UpdateConfig пересобирает список игнорируемых.
func (f *UserFilter) UpdateConfig(cfg *config.Config) {
	ignored := make(map[string]struct{}, len(cfg.IgnoredUsers))
	for _, u := range cfg.IgnoredUsers {
		ignored[u] = struct{}{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignored = ignored
}

// CheckAccess решает, пускать ли сообщение в обработку.
func (f *UserFilter) CheckAccess(msg events.ChatMessage) bool {
	if msg.Username == "" || msg.Channel == "" {
		log.WithField("component", "UserFilter").Warn("Сообщение без отправителя или канала")
		return false
	}

	f.mu.RLock()
	_, skip := f.ignored[msg.Username]
	f.mu.RUnlock()

	if skip {
		log.WithFields(log.Fields{
			"component": "UserFilter",
			"username":  msg.Username,
		}).Debug("deny: игнорируемый пользователь")
		return false
	}
	return true
}
