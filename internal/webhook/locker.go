package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes concurrent deliveries of the same dedupe key so
// only one of them dispatches the handler.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker implements Locker with SET NX and a TTL so a crashed
// worker cannot hold a key forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "webhook:lock:" + key
	for {
		ok, err := l.client.SetNX(ctx, lockKey, "1", l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire dedupe lock: %w", err)
		}
		if ok {
			return func() {
				l.client.Del(context.Background(), lockKey)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// MemoryLocker is the in-process fallback used when no Redis URL is
// configured, and in tests. Entries are refcounted and evicted on
// release so the map stays bounded by the number of in-flight keys.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	keyMu sync.Mutex
	refs  int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memoryLock)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &memoryLock{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.keyMu.Lock()
	return func() {
		m.keyMu.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}, nil
}
