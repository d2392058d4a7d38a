package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockTimeout = errors.New("lock_timeout")
	ErrInvalidLock = errors.New("invalid_lock")
)

var lockPollInterval = 50 * time.Millisecond

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a mutual-exclusion lock keyed by string. Tokens identify the
// holder so a lock that expired and was taken over is never released by
// its previous owner.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Acquire polls TryLock until the lock is held, wait elapses or ctx ends.
// Store errors are returned as-is.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrLockTimeout
		}
		sleep := lockPollInterval
		if remaining < sleep {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

type RedisLocker struct {
	client   *redis.Client
	script   *redis.Script
	newToken func() string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:   client,
		script:   redis.NewScript(lockReleaseScript),
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" || ttl <= 0 {
		return "", false, ErrInvalidLock
	}

	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
