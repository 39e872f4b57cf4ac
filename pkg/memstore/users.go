// Package memstore holds in-memory implementations of the user, task and
// activity stores. The server uses them when no database is configured and
// the tests use them everywhere. Values are copied on the way in and out so
// callers never share state with the store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/user"
)

// Users is an in-memory user.Store.
type Users struct {
	mu       sync.RWMutex
	byID     map[string]*user.User
	byHandle map[string]string // normalized handle -> id
}

// NewUsers creates an empty user store.
func NewUsers() *Users {
	return &Users{
		byID:     make(map[string]*user.User),
		byHandle: make(map[string]string),
	}
}

func (s *Users) EnsureTable(ctx context.Context) error { return nil }

func (s *Users) Create(ctx context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := user.NormalizeHandle(u.Handle)
	if _, taken := s.byHandle[h]; taken {
		return nil, apperr.Conflict("handle already in use")
	}
	u.ID = uuid.Must(uuid.NewV7()).String()
	u.Handle = h
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = user.RoleMember
	}

	cp := *u
	s.byID[u.ID] = &cp
	s.byHandle[h] = u.ID
	return u, nil
}

func (s *Users) Get(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Users) ByHandle(ctx context.Context, handle string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHandle[user.NormalizeHandle(handle)]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *Users) GetMany(ctx context.Context, ids []string) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []user.User
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u, ok := s.byID[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Users) Update(ctx context.Context, id string, updates map[string]any) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	next := *u
	for k, v := range updates {
		switch k {
		case "name":
			next.Name, _ = v.(string)
		case "secret_hash":
			next.SecretHash, _ = v.(string)
		case "avatar_url":
			next.AvatarURL, _ = v.(string)
		case "token_version":
			next.TokenVersion, _ = v.(int)
		case "handle":
			h, _ := v.(string)
			next.Handle = user.NormalizeHandle(h)
		}
	}
	if next.Handle != u.Handle {
		if owner, taken := s.byHandle[next.Handle]; taken && owner != id {
			return nil, apperr.Conflict("handle already in use")
		}
		delete(s.byHandle, u.Handle)
		s.byHandle[next.Handle] = id
	}
	next.UpdatedAt = time.Now()
	s.byID[id] = &next

	cp := next
	return &cp, nil
}

func (s *Users) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return apperr.NotFound("user not found")
	}
	delete(s.byHandle, u.Handle)
	delete(s.byID, id)
	return nil
}

func (s *Users) List(ctx context.Context, role user.Role) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []user.User
	for _, u := range s.byID {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
