package repo

import (
	"context"
	"sync"
	"time"

	"tg-channel-digest/internal/domain"
)

// Memory реализует тот же контракт хранилища в памяти.
// Используется в dev-режиме и в тестах usecase-слоя.
type Memory struct {
	mu sync.Mutex

	nextChannelID int64
	nextPostID    int64

	channels     map[int64][]domain.Channel
	posts        map[int64][]domain.Post
	descriptions map[int64]map[string]domain.ChannelDescription
	states       map[int64]bool
}

var (
	_ domain.SourceRepo      = (*Memory)(nil)
	_ domain.PostRepo        = (*Memory)(nil)
	_ domain.DescriptionRepo = (*Memory)(nil)
	_ domain.StateRepo       = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		channels:     make(map[int64][]domain.Channel),
		posts:        make(map[int64][]domain.Post),
		descriptions: make(map[int64]map[string]domain.ChannelDescription),
		states:       make(map[int64]bool),
	}
}

// AddSource сохраняет новый канал-источник пользователя.
func (m *Memory) AddSource(_ context.Context, userID int64, username string) (domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.channels[userID] {
		if ch.Username == username {
			return domain.Channel{}, domain.ErrSourceExists
		}
	}
	m.nextChannelID++
	ch := domain.Channel{
		ID:        m.nextChannelID,
		UserID:    userID,
		Username:  username,
		IsNew:     true,
		CreatedAt: time.Now().UTC(),
	}
	m.channels[userID] = append(m.channels[userID], ch)
	return ch, nil
}

// RemoveSource удаляет канал и каскадно его посты и описания.
func (m *Memory) RemoveSource(_ context.Context, userID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := m.channels[userID]
	idx := -1
	for i, ch := range channels {
		if ch.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrSourceNotFound
	}
	m.channels[userID] = append(channels[:idx], channels[idx+1:]...)

	kept := m.posts[userID][:0]
	for _, post := range m.posts[userID] {
		if post.ChannelUsername != username {
			kept = append(kept, post)
		}
	}
	m.posts[userID] = kept

	delete(m.descriptions[userID], username)
	return nil
}

// ListSources возвращает каналы пользователя в порядке добавления.
func (m *Memory) ListSources(_ context.Context, userID int64) ([]domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.Channel, len(m.channels[userID]))
	copy(result, m.channels[userID])
	return result, nil
}

// SetSourceEstablished сбрасывает флаг "новый канал".
func (m *Memory) SetSourceEstablished(_ context.Context, userID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ch := range m.channels[userID] {
		if ch.Username == username {
			m.channels[userID][i].IsNew = false
			return nil
		}
	}
	return domain.ErrSourceNotFound
}

// AddPost идемпотентно сохраняет пост со следующим сквозным номером.
func (m *Memory) AddPost(_ context.Context, userID int64, post domain.Post) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max int64
	for _, existing := range m.posts[userID] {
		if existing.PostID == post.PostID {
			return false, 0, nil
		}
		if existing.PostNumber > max {
			max = existing.PostNumber
		}
	}
	m.nextPostID++
	post.ID = m.nextPostID
	post.UserID = userID
	post.PostNumber = max + 1
	post.IsRead = false
	post.CreatedAt = time.Now().UTC()
	m.posts[userID] = append(m.posts[userID], post)
	return true, post.PostNumber, nil
}

// IsAdmitted сообщает, был ли пост уже допущен.
func (m *Memory) IsAdmitted(_ context.Context, userID int64, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, post := range m.posts[userID] {
		if post.PostID == postID {
			return true, nil
		}
	}
	return false, nil
}

// NextSequenceNumber возвращает номер для следующего поста.
func (m *Memory) NextSequenceNumber(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max int64
	for _, post := range m.posts[userID] {
		if post.PostNumber > max {
			max = post.PostNumber
		}
	}
	return max + 1, nil
}

// ListUnread возвращает непрочитанные посты в порядке номеров.
func (m *Memory) ListUnread(_ context.Context, userID int64) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Post
	for _, post := range m.posts[userID] {
		if !post.IsRead {
			result = append(result, post)
		}
	}
	return result, nil
}

// MarkRead помечает пост прочитанным.
func (m *Memory) MarkRead(_ context.Context, userID int64, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, post := range m.posts[userID] {
		if post.ID == id {
			m.posts[userID][i].IsRead = true
			return nil
		}
	}
	return domain.ErrPostNotFound
}

// UpsertShortDescription сохраняет краткое описание канала.
func (m *Memory) UpsertShortDescription(_ context.Context, userID int64, username, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc := m.description(userID, username)
	desc.Short = description
	m.descriptions[userID][username] = desc
	return nil
}

// UpsertDetailedDescription сохраняет подробное описание канала.
func (m *Memory) UpsertDetailedDescription(_ context.Context, userID int64, username, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc := m.description(userID, username)
	desc.Detailed = description
	m.descriptions[userID][username] = desc
	return nil
}

// GetDescription возвращает описания канала; отсутствие — пустые строки.
func (m *Memory) GetDescription(_ context.Context, userID int64, username string) (domain.ChannelDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.description(userID, username), nil
}

func (m *Memory) description(userID int64, username string) domain.ChannelDescription {
	byUser, ok := m.descriptions[userID]
	if !ok {
		byUser = make(map[string]domain.ChannelDescription)
		m.descriptions[userID] = byUser
	}
	desc, ok := byUser[username]
	if !ok {
		desc = domain.ChannelDescription{UserID: userID, Username: username}
	}
	return desc
}

// SetActive переключает флаг активности отслеживания.
func (m *Memory) SetActive(_ context.Context, userID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[userID] = active
	return nil
}

// IsActive возвращает флаг активности.
func (m *Memory) IsActive(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.states[userID], nil
}
