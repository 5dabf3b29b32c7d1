package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User), now: time.Now}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u := s.byEmail(email); u != nil {
		c := *u
		return &c, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) Update(_ context.Context, id string, p Patch) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, ErrUserNotFound
	}
	if p.Email != nil && !strings.EqualFold(*p.Email, u.Email) {
		if other := s.byEmail(*p.Email); other != nil {
			return nil, ErrEmailTaken
		}
	}

	p.apply(u)
	u.UpdatedAt = s.now().UTC()
	c := *u
	return &c, nil
}

func (s *MemoryStore) Create(_ context.Context, nu NewUser) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byEmail(nu.Email) != nil {
		return nil, ErrEmailTaken
	}

	now := s.now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Role:      roleOrDefault(nu.Role),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	c := *u
	return &c, nil
}

// byEmail must be called with mu held.
func (s *MemoryStore) byEmail(email string) *User {
	for _, u := range s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}
