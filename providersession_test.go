package tourguard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := NewMemorySessionStore(clock.Now)

	ref := SessionRef{UserID: "u-1", Provider: "google"}
	require.NoError(t, s.Save(ctx, "sid", ref, time.Hour))

	got, err := s.Load(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ref, *got)

	clock.Advance(time.Hour)
	got, err = s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got, "sessions expire after their ttl")

	require.NoError(t, s.Save(ctx, "sid2", ref, time.Hour))
	require.NoError(t, s.Delete(ctx, "sid2"))
	got, _ = s.Load(ctx, "sid2")
	assert.Nil(t, got)
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client, "")

	ref := SessionRef{UserID: "u-1", Provider: "google"}
	require.NoError(t, s.Save(ctx, "sid", ref, time.Hour))
	assert.True(t, mr.Exists("tourguard:session:sid"))
	assert.Equal(t, time.Hour, mr.TTL("tourguard:session:sid"))

	got, err := s.Load(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ref, *got)

	mr.FastForward(2 * time.Hour)
	got, err = s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)

	missing, err := s.Load(ctx, "never-saved")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisSessionStoreDelete(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client, "p:")

	require.NoError(t, s.Save(ctx, "sid", SessionRef{UserID: "u"}, time.Minute))
	require.NoError(t, s.Delete(ctx, "sid"))
	assert.False(t, mr.Exists("p:sid"))
}

func TestRedisSessionStoreCorruptValue(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client, "p:")
	require.NoError(t, mr.Set("p:sid", "{not json"))

	_, err := s.Load(context.Background(), "sid")
	assert.ErrorContains(t, err, "decode session")
}

func TestSerializeDeserializeUserIsSymmetric(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	u := &User{Name: "Leo", Email: "leo@example.com", Provider: "google", ProviderSubject: "sub"}
	require.NoError(t, a.store.CreateUser(ctx, u))

	got, err := a.deserializeUser(ctx, serializeUser(u))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
}
