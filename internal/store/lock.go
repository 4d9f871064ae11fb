package store

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"hiberry/internal/model"
)

// DateLocker serializes capacity decisions for one delivery date. The
// returned unlock func is safe to call more than once.
type DateLocker interface {
	Lock(ctx context.Context, date model.Date) (unlock func(), err error)
}

// MemoryLocker locks dates within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[model.Date]*dateLock
}

type dateLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[model.Date]*dateLock{}}
}

func (l *MemoryLocker) Lock(ctx context.Context, date model.Date) (func(), error) {
	l.mu.Lock()
	dl := l.locks[date]
	if dl == nil {
		dl = &dateLock{ch: make(chan struct{}, 1)}
		l.locks[date] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(date, dl)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.ch
			l.release(date, dl)
		})
	}, nil
}

func (l *MemoryLocker) release(date model.Date, dl *dateLock) {
	l.mu.Lock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, date)
	}
	l.mu.Unlock()
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker locks dates across instances with SET NX PX. A holder that
// dies loses the lock after TTL.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	TTL    time.Duration
	// Retry is the poll interval while another holder owns the key.
	Retry time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "hiberry:lock:orders:", TTL: 10 * time.Second, Retry: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, date model.Date) (func(), error) {
	key := l.key(date)
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fail(http.StatusServiceUnavailable, err, "lock orders for %s", date)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.Retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
		})
	}, nil
}

func (l *RedisLocker) key(date model.Date) string { return l.prefix + string(date) }
