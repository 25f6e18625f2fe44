// Package store provides storage backends for the Prim backend.
//
// This file implements an in-memory store used for tests and DSN-less runs.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prim-health/prim-backend/internal/models"
)

// InMemoryStore keeps users and messages in process memory. Safe for
// concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	messages map[string][]models.Message // keyed by user ID
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]models.User),
		messages: make(map[string][]models.Message),
	}
}

// EnsureIndexes is a no-op for the in-memory store; uniqueness is enforced
// directly in CreateUser.
func (s *InMemoryStore) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (s *InMemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Phone == u.Phone {
			return models.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (s *InMemoryStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Phone == phone {
			copied := u
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email != "" && u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *InMemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *InMemoryStore) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.CallPhone != nil {
		u.CallPhone = *update.CallPhone
	}
	if update.IsYC != nil {
		u.IsYC = *update.IsYC
	}
	if update.Onboarded != nil {
		u.Onboarded = *update.Onboarded
	}
	if update.VapiAssistantID != nil {
		u.VapiAssistantID = *update.VapiAssistantID
	}
	s.users[id] = u
	return true, nil
}

func (s *InMemoryStore) AddMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.messages[m.UserID] = append(s.messages[m.UserID], *m)
	return nil
}

func (s *InMemoryStore) GetMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]models.Message, len(s.messages[userID]))
	copy(msgs, s.messages[userID])
	// Newest first, matching the persistent backends
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
