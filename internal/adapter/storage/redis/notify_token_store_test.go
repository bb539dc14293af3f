package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenStore(t *testing.T) (*NotifyTokenStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewNotifyTokenStore(client), s
}

func TestNotifyTokenStore_IssueAndConsume(t *testing.T) {
	store, s := newTokenStore(t)
	ctx := context.Background()
	ownerID := uuid.New()

	require.NoError(t, store.Issue(ctx, "tok-1", ownerID, 30*time.Second))
	assert.True(t, s.Exists("notify:token:tok-1"))

	got, ok, err := store.Consume(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ownerID, got)

	assert.False(t, s.Exists("notify:token:tok-1"))
	members, _ := s.Members("notify:owner:" + ownerID.String())
	assert.Empty(t, members)
}

func TestNotifyTokenStore_ConsumeTwice(t *testing.T) {
	store, _ := newTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-once", uuid.New(), 30*time.Second))

	_, ok, err := store.Consume(ctx, "tok-once")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.Consume(ctx, "tok-once")
	require.NoError(t, err)
	assert.False(t, ok, "token must be single use")
}

func TestNotifyTokenStore_ConcurrentConsume(t *testing.T) {
	store, _ := newTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-race", uuid.New(), 30*time.Second))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := store.Consume(ctx, "tok-race"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestNotifyTokenStore_Expired(t *testing.T) {
	store, s := newTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-exp", uuid.New(), time.Second))
	s.FastForward(2 * time.Second)

	_, ok, err := store.Consume(ctx, "tok-exp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifyTokenStore_Unknown(t *testing.T) {
	store, _ := newTokenStore(t)

	ownerID, ok, err := store.Consume(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, ownerID)
}

func TestNotifyTokenStore_RevokeOwner(t *testing.T) {
	store, _ := newTokenStore(t)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	require.NoError(t, store.Issue(ctx, "a", owner, time.Minute))
	require.NoError(t, store.Issue(ctx, "b", owner, time.Minute))
	require.NoError(t, store.Issue(ctx, "c", other, time.Minute))

	n, err := store.RevokeOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := store.Consume(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = store.Consume(ctx, "b")
	assert.False(t, ok)

	got, ok, err := store.Consume(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok, "other owners keep their tokens")
	assert.Equal(t, other, got)
}

func TestNotifyTokenStore_RevokeOwner_NoTokens(t *testing.T) {
	store, _ := newTokenStore(t)

	n, err := store.RevokeOwner(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}
