package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, 5*time.Second, WithRetryDelay(time.Millisecond))
}

func TestRedis_LockAndRelease(t *testing.T) {
	mr, l := newTestRedis(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "application:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("loan:lock:application:1"))

	unlock()
	assert.False(t, mr.Exists("loan:lock:application:1"))
}

func TestRedis_BlocksUntilReleased(t *testing.T) {
	_, l := newTestRedis(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx2, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, l := newTestRedis(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	// GIVEN: our lock expired and another holder took the key
	mr.FastForward(10 * time.Second)
	require.NoError(t, mr.Set("loan:lock:k", "someone-else"))

	// WHEN: we release late
	unlock()

	// THEN: the other holder keeps the lock
	v, err := mr.Get("loan:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}
