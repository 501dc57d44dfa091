package tourguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u := &User{Name: "Jonas", Email: "  Jonas@Example.com ", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)
	assert.Equal(t, "jonas@example.com", u.Email)
	assert.Equal(t, RoleUser, u.Role)

	got, err := s.GetUserByEmail(ctx, "JONAS@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	got.Name = "mutated"
	again, _ := s.GetUserByID(ctx, u.ID)
	assert.Equal(t, "Jonas", again.Name, "callers must not share stored records")

	missing, err := s.GetUserByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, s.CreateUser(ctx, &User{Email: "jonas@example.com"}), ErrDuplicateEmail)
}

func TestMemoryStoreProviderLinkage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := &User{Email: "a@example.com", Provider: "google", ProviderSubject: "sub-1"}
	require.NoError(t, s.CreateUser(ctx, a))
	b := &User{Email: "b@example.com", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, b))

	got, err := s.GetUserByProvider(ctx, "google", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	assert.ErrorIs(t, s.LinkProvider(ctx, b.ID, "google", "sub-1"), ErrDuplicateLinkage)
	require.NoError(t, s.LinkProvider(ctx, b.ID, "google", "sub-2"))

	got, _ = s.GetUserByProvider(ctx, "google", "sub-2")
	assert.Equal(t, b.ID, got.ID)
}

func TestMemoryStoreResetTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	u := &User{Email: "a@example.com", PasswordHash: "old"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.SetResetTicket(ctx, u.ID, "ticket-hash", now.Add(10*time.Minute)))

	got, _ := s.GetUserByResetTicket(ctx, "ticket-hash", now)
	require.NotNil(t, got)
	expired, _ := s.GetUserByResetTicket(ctx, "ticket-hash", now.Add(11*time.Minute))
	assert.Nil(t, expired)

	change := PasswordChange{
		UserID:             u.ID,
		PasswordHash:       "new",
		PasswordChangedAt:  now,
		ExpectedTicketHash: "ticket-hash",
		Now:                now,
	}
	require.NoError(t, s.ChangePassword(ctx, change))
	assert.ErrorIs(t, s.ChangePassword(ctx, change), ErrPreconditionFailed)

	got, _ = s.GetUserByID(ctx, u.ID)
	assert.Equal(t, "new", got.PasswordHash)
	assert.Empty(t, got.ResetTicketHash)
	assert.True(t, got.ResetExpiresAt.IsZero())
	assert.Equal(t, now, got.PasswordChangedAt)
}

func TestMemoryStoreChangePasswordSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	u := &User{Email: "a@example.com", PasswordHash: "old"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.SetResetTicket(ctx, u.ID, "t", now.Add(time.Minute)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ChangePassword(ctx, PasswordChange{
				UserID: u.ID, PasswordHash: "new", PasswordChangedAt: now,
				ExpectedTicketHash: "t", Now: now,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryStoreChangePasswordExpectedHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u := &User{Email: "a@example.com", PasswordHash: "old"}
	require.NoError(t, s.CreateUser(ctx, u))

	err := s.ChangePassword(ctx, PasswordChange{UserID: u.ID, PasswordHash: "new", ExpectedHash: "stale"})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	require.NoError(t, s.ChangePassword(ctx, PasswordChange{UserID: u.ID, PasswordHash: "new", ExpectedHash: "old"}))
}
