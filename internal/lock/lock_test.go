package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "s1|offline")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestKeyMutex_MutualExclusion(t *testing.T) {
	km := NewKeyMutex()
	exerciseMutualExclusion(t, km)
	assert.Equal(t, 0, km.Len())
}

func TestKeyMutex_IndependentKeys(t *testing.T) {
	km := NewKeyMutex()
	r1, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r2, err := km.Lock(ctx, "b")
	require.NoError(t, err)
	r2()
}

func TestKeyMutex_ContextCancelled(t *testing.T) {
	km := NewKeyMutex()
	release, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, km.Len())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	exerciseMutualExclusion(t, NewRedisLocker(client, "lock:", time.Second, zap.NewNop()))
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "lock:", time.Second, zap.NewNop())

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	mr.Del("lock:k")
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	release()
	got, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_WaitHonoursContext(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, "lock:", time.Second, zap.NewNop())

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
