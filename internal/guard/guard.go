// Package guard serializes optimization passes. At most one pass runs at
// a time per deployment; the lock carries a TTL so a crashed holder can
// never wedge planning permanently.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PassLock is the single-pass mutex. Acquire returns false without
// blocking when another pass holds the lock.
type PassLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// MemoryLock is the single-process lock. The TTL expiry mirrors the
// distributed implementation so both behave the same under a stuck pass.
type MemoryLock struct {
	ttl time.Duration

	mu        sync.Mutex
	heldUntil time.Time
	now       func() time.Time
}

func NewMemoryLock(ttl time.Duration) *MemoryLock {
	return &MemoryLock{ttl: ttl, now: time.Now}
}

func (l *MemoryLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.heldUntil.After(now) {
		return false, nil
	}
	l.heldUntil = now.Add(l.ttl)
	return true, nil
}

func (l *MemoryLock) Release(context.Context) error {
	l.mu.Lock()
	l.heldUntil = time.Time{}
	l.mu.Unlock()
	return nil
}

// RedisLock coordinates passes across replicas with SET NX PX. Release
// only deletes the key when this instance still owns it, so a holder
// whose TTL lapsed cannot release a successor's lock.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	token string
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func NewRedisLock(url string, ttl time.Duration) (*RedisLock, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisLock{
		rdb:   redis.NewClient(opt),
		key:   "plan:pass:lock",
		ttl:   ttl,
		token: uuid.NewString(),
	}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
