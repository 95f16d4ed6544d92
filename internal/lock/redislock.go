package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL bounds how long a crashed holder can block the next run.
// It must exceed the run deadline so a live run is never evicted.
const DefaultLeaseTTL = 45 * time.Minute

// releaseScript deletes the key only if this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is a RunLock backed by a Redis lease with a TTL. Use it when
// multiple hosts may run the job; the TTL substitutes for the kernel
// cleanup a file lock gets for free.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lease lock on key with the given TTL.
// A non-positive TTL falls back to DefaultLeaseTTL.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

var _ RunLock = (*RedisLock)(nil)

// TryAcquire attempts SET NX with the lease TTL.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	token, err := newToken()
	if err != nil {
		return false, err
	}

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release deletes the lease if this instance still holds it. Releasing a
// lease that expired and was re-acquired elsewhere is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release redis lock %s: %w", l.key, err)
	}
	l.token = ""
	return nil
}

// newToken generates a random holder token so Release cannot delete a lease
// acquired by another instance after TTL expiry.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
