package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("account lock not acquired")
)

// Locker serializes removal runs per account across console instances.
type Locker interface {
	WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisAccountLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAccountLocker creates a locker that uses a per account Redis key
func NewRedisAccountLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisAccountLocker{
		client: client,
		ttl:    ttl,
	}
}

func LockKey(accountID uuid.UUID) string {
	return fmt.Sprintf("lock:account-removal:%s", accountID.String())
}

func (l *redisAccountLocker) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context) error) error {
	key := LockKey(accountID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire account lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release even if the caller's context is already done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisAccountLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release account lock: %w", err)
	}
	return nil
}

// NopLocker runs fn without coordination. Used when Redis is disabled.
type NopLocker struct{}

func (NopLocker) WithAccountLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
