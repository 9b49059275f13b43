// Package channelstate хранит эфемерное состояние каналов в памяти:
// текущее медиа, последнее сообщение, недавние входы и счётчики наград
// за текущее медиа. Состояние намеренно не переживает рестарт — все
// финансовые данные живут только в леджере, поэтому потеря этого
// состояния максимум сбрасывает дебаунс-окна.
package channelstate

import (
	"sync"
	"time"
)

// Media — текущее медиа канала.
type Media struct {
	ID           string
	Title        string
	Duration     time.Duration
	StartedAt    time.Time
	UsersAtStart []string
}

// LastMessage — метаданные последнего сообщения канала.
// Нужны реактивному триггеру смеха: смех награждает предыдущего оратора.
type LastMessage struct {
	Username string
	Text     string
	At       time.Time
}

// recentJoinsCap — сколько недавних входов помним на канал.
const recentJoinsCap = 20

type channelState struct {
	media       *Media
	lastMessage *LastMessage
	recentJoins []string
	present     map[string]struct{}
	// Счётчики наград за текущее медиа: username → выдано.
	// Обнуляются при смене медиа.
	mediaCounters map[string]int
}

// Manager владеет состоянием всех каналов.
// Потокобезопасен: события приходят из параллельных горутин.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*channelState
}

// NewManager создаёт пустой менеджер состояния.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]*channelState)}
}

// state возвращает состояние канала, создавая его при первом обращении.
// Вызывается только под mu.
func (m *Manager) state(channel string) *channelState {
	st, ok := m.channels[channel]
	if !ok {
		st = &channelState{
			present:       make(map[string]struct{}),
			mediaCounters: make(map[string]int),
		}
		m.channels[channel] = st
	}
	return st
}

// OnMediaChange фиксирует смену медиа и обнуляет счётчики медиа.
func (m *Manager) OnMediaChange(channel string, media Media) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(channel)
	st.media = &media
	st.mediaCounters = make(map[string]int)
	for _, u := range media.UsersAtStart {
		st.present[u] = struct{}{}
	}
}

// OnJoin отмечает вход пользователя.
func (m *Manager) OnJoin(channel, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(channel)
	st.present[username] = struct{}{}
	st.recentJoins = append(st.recentJoins, username)
	if len(st.recentJoins) > recentJoinsCap {
		st.recentJoins = st.recentJoins[len(st.recentJoins)-recentJoinsCap:]
	}
}

// OnLeave отмечает выход пользователя.
func (m *Manager) OnLeave(channel, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.state(channel).present, username)
}

// OnMessage записывает новое последнее сообщение и возвращает предыдущее
// (nil, если сообщений ещё не было).
func (m *Manager) OnMessage(channel, username, text string, at time.Time) *LastMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(channel)
	prev := st.lastMessage
	st.lastMessage = &LastMessage{Username: username, Text: text, At: at}
	return prev
}

// CurrentMedia возвращает копию текущего медиа (nil, если ничего не играет).
func (m *Manager) CurrentMedia(channel string) *Media {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.channels[channel]
	if !ok || st.media == nil {
		return nil
	}
	cp := *st.media
	return &cp
}

// IncMediaCounter увеличивает счётчик наград пользователя за текущее медиа
// и возвращает новое значение.
func (m *Manager) IncMediaCounter(channel, username string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(channel)
	st.mediaCounters[username]++
	return st.mediaCounters[username]
}

// MediaCounter возвращает счётчик наград пользователя за текущее медиа.
func (m *Manager) MediaCounter(channel, username string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.channels[channel]
	if !ok {
		return 0
	}
	return st.mediaCounters[username]
}

// Population возвращает число присутствующих в канале.
func (m *Manager) Population(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.channels[channel]
	if !ok {
		return 0
	}
	return len(st.present)
}

// Present возвращает срез присутствующих (для фоновых наград за просмотр).
func (m *Manager) Present(channel string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.channels[channel]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(st.present))
	for u := range st.present {
		out = append(out, u)
	}
	return out
}

// RecentJoins возвращает недавние входы (от старых к новым).
func (m *Manager) RecentJoins(channel string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.channels[channel]
	if !ok {
		return nil
	}
	out := make([]string, len(st.recentJoins))
	copy(out, st.recentJoins)
	return out
}

// ChannelsWithMedia возвращает каналы, в которых сейчас что-то играет.
func (m *Manager) ChannelsWithMedia() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for ch, st := range m.channels {
		if st.media != nil {
			out = append(out, ch)
		}
	}
	return out
}
