package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, l DateLocker) {
	t.Helper()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "2024-01-08")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)

	// other dates are independent
	unlock, err := l.Lock(ctx, "2024-01-08")
	require.NoError(t, err)
	other, err := l.Lock(ctx, "2024-01-09")
	require.NoError(t, err)
	other()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "2024-01-08")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	again, err := l.Lock(ctx, "2024-01-08")
	require.NoError(t, err)
	again()
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	exerciseLocker(t, l)
	assert.Empty(t, l.locks)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb)
	l.Retry = time.Millisecond
	exerciseLocker(t, l)
	assert.False(t, mr.Exists(l.key("2024-01-08")))
}

func TestRedisLockerDoesNotReleaseForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRedisLocker(rdb)

	unlock, err := l.Lock(context.Background(), "2024-01-08")
	require.NoError(t, err)

	// our key expires and somebody else takes it
	mr.FastForward(l.TTL + time.Second)
	require.NoError(t, mr.Set(l.key("2024-01-08"), "someone-else"))

	unlock()
	v, err := mr.Get(l.key("2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedisLocker(rdb).Lock(context.Background(), "2024-01-08")
	require.Error(t, err)
	assert.Equal(t, 503, StatusCode(err))
}
