package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"erp/internal/user/models"
	id "erp/pkg/domain"
	"erp/pkg/platform/sentinel"
)

// InMemoryStore keeps users in a map guarded by a single mutex. The lock is
// held across Execute callbacks, which gives the same validate-then-mutate
// atomicity the postgres store gets from SELECT ... FOR UPDATE.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemoryStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[emailKey(user.Email)]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.users[user.ID]; ok {
		return sentinel.ErrConflict
	}
	s.users[user.ID] = user.Clone()
	s.byEmail[emailKey(user.Email)] = user.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return u.Clone(), nil
}

// List returns users ordered by creation time, oldest first.
func (s *InMemoryStore) List(_ context.Context, filter ListFilter) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		out = append(out, u.Clone())
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	oldKey, newKey := emailKey(current.Email), emailKey(working.Email)
	if oldKey != newKey {
		if _, taken := s.byEmail[newKey]; taken {
			return nil, sentinel.ErrConflict
		}
		delete(s.byEmail, oldKey)
		s.byEmail[newKey] = userID
	}
	s.users[userID] = working
	return working.Clone(), nil
}

func (s *InMemoryStore) DeleteIf(_ context.Context, userID id.UserID, check func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := check(current.Clone()); err != nil {
		return current.Clone(), err
	}
	delete(s.users, userID)
	delete(s.byEmail, emailKey(current.Email))
	return current.Clone(), nil
}
