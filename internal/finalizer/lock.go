package finalizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/utils"

	rd "github.com/redis/go-redis/v9"
)

// Locker serializes finalization per auction. Acquire returns false when
// another worker already holds the auction; release is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, auctionID string) (release func(), ok bool, err error)
}

// finalizeLockKey names the per-auction single-flight lock.
func finalizeLockKey(auctionID string) string {
	return fmt.Sprintf("auction_engine:finalize:lock:%s", auctionID)
}

// luaReleaseLockIfMatch deletes the lock only when it still holds our
// token, so an expired-and-reacquired lock is never released by mistake.
const luaReleaseLockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// RedisLocker implements Locker on a shared redis, so multiple service
// instances never finalize the same auction concurrently. The TTL bounds
// how long a crashed holder blocks other workers.
type RedisLocker struct {
	rdb *rd.Client
	ttl time.Duration
}

// NewRedisLocker creates a redis-backed finalization locker.
func NewRedisLocker(rdb *rd.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Acquire takes the per-auction lock with SETNX.
func (l *RedisLocker) Acquire(ctx context.Context, auctionID string) (func(), bool, error) {
	key := finalizeLockKey(auctionID)
	token := utils.GenerateID()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("finalizer: acquire lock for auction %s: %w", auctionID, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.rdb.Eval(releaseCtx, luaReleaseLockIfMatch, []string{key}, token).Err(); err != nil {
			utils.Warn("finalizer: lock release failed", map[string]any{
				"auction_id": auctionID,
				"error":      err.Error(),
			})
		}
	}
	return release, true, nil
}

// LocalLocker implements Locker in process memory for single-instance
// deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker creates an in-process finalization locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// Acquire takes the in-process lock for an auction.
func (l *LocalLocker) Acquire(_ context.Context, auctionID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[auctionID] {
		return nil, false, nil
	}
	l.held[auctionID] = true
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, auctionID)
	}
	return release, true, nil
}
