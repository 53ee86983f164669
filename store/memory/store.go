// Package memory is an in-process goAccounts.UserStore for tests, demos and
// the load tool.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	goAccounts "github.com/MrEthical07/goAccounts"
)

// Store keeps users in maps guarded by a RWMutex. The zero value is not
// usable; call New.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*goAccounts.User
	byEmail map[string]string
}

// New returns a store seeded with users. Seeding stops at the first
// duplicate, which is reported as goAccounts.ErrUserExists.
func New(users ...goAccounts.User) (*Store, error) {
	s := &Store{
		byID:    make(map[string]*goAccounts.User, len(users)),
		byEmail: make(map[string]string, len(users)),
	}
	for i := range users {
		if err := s.CreateUser(context.Background(), &users[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*goAccounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, goAccounts.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*goAccounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalize(email)]
	if !ok {
		return nil, goAccounts.ErrUserNotFound
	}
	c := *s.byID[id]
	return &c, nil
}

// CreateUser stores a copy of user.
func (s *Store) CreateUser(_ context.Context, user *goAccounts.User) error {
	if user == nil || user.ID == "" {
		return goAccounts.ErrInvalidUser
	}
	email := normalize(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; ok {
		return goAccounts.ErrUserExists
	}
	if _, ok := s.byEmail[email]; ok && email != "" {
		return goAccounts.ErrUserExists
	}

	c := *user
	s.byID[c.ID] = &c
	if email != "" {
		s.byEmail[email] = c.ID
	}
	return nil
}

// Len reports the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// IDs returns every user id in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
