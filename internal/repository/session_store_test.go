package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, "test"), mr
}

func TestSessionStoreRevoke(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSessionStoreRevokeExpiredIsNoop(t *testing.T) {
	store, mr := newSessionStore(t)
	require.NoError(t, store.Revoke(context.Background(), "jti-2", 0))
	assert.False(t, mr.Exists("test:revoked:jti-2"))
}

func TestSessionStoreClaimOnceConcurrent(t *testing.T) {
	store, _ := newSessionStore(t)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimOnce(context.Background(), "handoff", time.Minute)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestSessionStoreReleaseAllowsReclaim(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()

	ok, err := store.ClaimOnce(ctx, "handoff", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ClaimOnce(ctx, "handoff", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Release(ctx, "handoff"))
	assert.False(t, mr.Exists("test:claimed:handoff"))

	ok, err = store.ClaimOnce(ctx, "handoff", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Release(ctx, "never-claimed"))
}

func TestSessionStoreBackendFailure(t *testing.T) {
	store, mr := newSessionStore(t)
	mr.Close()

	_, err := store.IsRevoked(context.Background(), "jti")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionBackend)
}
