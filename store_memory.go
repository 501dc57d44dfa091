package tourguard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps users in process memory. Used for development and tests;
// every method copies records in and out so callers never share state.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		now:   time.Now,
	}
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.users[id]), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.findLocked(func(u *User) bool { return u.Email == NormalizeEmail(email) })), nil
}

func (s *MemoryStore) GetUserByProvider(ctx context.Context, provider, subject string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.findLocked(func(u *User) bool {
		return u.Provider == provider && u.ProviderSubject == subject
	})), nil
}

func (s *MemoryStore) GetUserByResetTicket(ctx context.Context, ticketHash string, now time.Time) (*User, error) {
	if ticketHash == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.findLocked(func(u *User) bool {
		return u.ResetTicketHash == ticketHash && now.Before(u.ResetExpiresAt)
	})), nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = NormalizeEmail(u.Email)
	if s.findLocked(func(x *User) bool { return x.Email == u.Email }) != nil {
		return ErrDuplicateEmail
	}
	if u.Provider != "" && s.findLocked(func(x *User) bool {
		return x.Provider == u.Provider && x.ProviderSubject == u.ProviderSubject
	}) != nil {
		return ErrDuplicateLinkage
	}

	now := s.now()
	u.ID = uuid.NewString()
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = clone(u)
	return nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[u.ID]
	if !ok {
		return ErrPreconditionFailed
	}
	u.Email = NormalizeEmail(u.Email)
	if other := s.findLocked(func(x *User) bool { return x.Email == u.Email }); other != nil && other.ID != u.ID {
		return ErrDuplicateEmail
	}
	stored.Name = u.Name
	stored.Email = u.Email
	stored.AvatarURL = u.AvatarURL
	stored.UpdatedAt = s.now()
	u.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[userID]
	if !ok {
		return ErrPreconditionFailed
	}
	if other := s.findLocked(func(x *User) bool {
		return x.Provider == provider && x.ProviderSubject == subject
	}); other != nil && other.ID != userID {
		return ErrDuplicateLinkage
	}
	stored.Provider = provider
	stored.ProviderSubject = subject
	stored.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SetResetTicket(ctx context.Context, userID, ticketHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[userID]
	if !ok {
		return ErrPreconditionFailed
	}
	stored.ResetTicketHash = ticketHash
	stored.ResetExpiresAt = expiresAt
	return nil
}

func (s *MemoryStore) ClearResetTicket(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.users[userID]; ok {
		stored.ResetTicketHash = ""
		stored.ResetExpiresAt = time.Time{}
	}
	return nil
}

func (s *MemoryStore) ChangePassword(ctx context.Context, c PasswordChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[c.UserID]
	if !ok {
		return ErrPreconditionFailed
	}
	switch {
	case c.ExpectedTicketHash != "":
		if stored.ResetTicketHash != c.ExpectedTicketHash || !c.Now.Before(stored.ResetExpiresAt) {
			return ErrPreconditionFailed
		}
	default:
		if stored.PasswordHash != c.ExpectedHash {
			return ErrPreconditionFailed
		}
	}

	stored.PasswordHash = c.PasswordHash
	stored.PasswordChangedAt = c.PasswordChangedAt
	stored.ResetTicketHash = ""
	stored.ResetExpiresAt = time.Time{}
	stored.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) findLocked(match func(*User) bool) *User {
	for _, u := range s.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func clone(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
