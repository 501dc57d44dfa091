package tourguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionRef is all a federated login session stores about its user.
type SessionRef struct {
	UserID   string `json:"uid"`
	Provider string `json:"provider"`
}

// SessionStore keeps federated login sessions. Load returns (nil, nil) for
// unknown or expired ids.
type SessionStore interface {
	Save(ctx context.Context, id string, ref SessionRef, ttl time.Duration) error
	Load(ctx context.Context, id string) (*SessionRef, error)
	Delete(ctx context.Context, id string) error
}

// serializeUser reduces a user to what the session keeps.
func serializeUser(u *User) SessionRef {
	return SessionRef{UserID: u.ID, Provider: u.Provider}
}

// deserializeUser loads the user a session refers to; nil if it is gone.
func (a *Auth) deserializeUser(ctx context.Context, ref SessionRef) (*User, error) {
	return a.store.GetUserByID(ctx, ref.UserID)
}

// establishProviderSession saves a session for u and sets its cookie. The
// cookie holds a random id; the store only sees its hash.
func (a *Auth) establishProviderSession(w http.ResponseWriter, r *http.Request, u *User) error {
	id, err := randomString(32)
	if err != nil {
		return err
	}
	if err := a.sessions.Save(r.Context(), hashToken(id), serializeUser(u), a.cfg.ProviderSessionTTL); err != nil {
		return fmt.Errorf("save provider session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.providerSessionName,
		Value:    id,
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   a.secureRequest(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  a.now().Add(a.cfg.ProviderSessionTTL),
	})
	return nil
}

// providerSessionUser returns the user of the request's federated session,
// or nil when there is none.
func (a *Auth) providerSessionUser(r *http.Request) (*User, error) {
	c, err := r.Cookie(a.providerSessionName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	ref, err := a.sessions.Load(r.Context(), hashToken(c.Value))
	if err != nil || ref == nil {
		return nil, err
	}
	return a.deserializeUser(r.Context(), *ref)
}

func (a *Auth) clearProviderSession(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(a.providerSessionName)
	if err != nil || c.Value == "" {
		return
	}
	if err := a.sessions.Delete(r.Context(), hashToken(c.Value)); err != nil {
		a.log.Warn("delete provider session", zap.Error(err))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.providerSessionName,
		Value:    "",
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   a.secureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// ============================================================================
// Memory
// ============================================================================

type memorySession struct {
	ref       SessionRef
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory. Expired entries are
// dropped lazily on Load.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{sessions: make(map[string]memorySession), now: now}
}

func (s *MemorySessionStore) Save(ctx context.Context, id string, ref SessionRef, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{ref: ref, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Load(ctx context.Context, id string) (*SessionRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}
	ref := sess.ref
	return &ref, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// ============================================================================
// Redis
// ============================================================================

// RedisSessionStore keeps sessions as JSON strings with a native TTL, so
// every instance behind a load balancer sees the same sessions.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "tourguard:session:"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) Save(ctx context.Context, id string, ref SessionRef, ttl time.Duration) error {
	b, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+id, b, ttl).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*SessionRef, error) {
	b, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ref SessionRef
	if err := json.Unmarshal(b, &ref); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &ref, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}
