package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	m := NewManager(NewRedisStore(client))

	revoked, err := m.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, m.Revoke(ctx, &Revocation{JTI: "abc", RevokedBy: "root", ExpiresAt: time.Now().Add(time.Hour)}))

	revoked, err = m.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL("session:revoked:abc")
	assert.Greater(t, ttl, 59*time.Minute)

	mr.FastForward(2 * time.Hour)
	revoked, err = m.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestManagerIgnoresExpiredTokens(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)
	ctx := context.Background()

	require.NoError(t, m.Revoke(ctx, &Revocation{JTI: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	assert.Empty(t, store.revoked)

	assert.ErrorIs(t, m.Revoke(ctx, &Revocation{ExpiresAt: time.Now().Add(time.Hour)}), ErrMissingJTI)
}

func TestMemoryStoreExpiresEntries(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Revocation{JTI: "a", ExpiresAt: now.Add(time.Minute)}))
	r, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, r)

	now = now.Add(2 * time.Minute)
	r, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, r)
}
