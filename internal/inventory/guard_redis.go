package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockLease = 5 * time.Second
	lockRetryDelay   = 25 * time.Millisecond
)

var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var extendLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisGuard serializes reservations per variant across processes with a
// Redis lock. The lease bounds how long a crashed holder blocks the variant;
// a live holder renews it every third of the lease until fn returns.
type RedisGuard struct {
	client *redis.Client
	lease  time.Duration
}

func NewRedisGuard(client *redis.Client, lease time.Duration) *RedisGuard {
	if lease <= 0 {
		lease = defaultLockLease
	}
	return &RedisGuard{client: client, lease: lease}
}

func (g *RedisGuard) Do(ctx context.Context, productID, variantKey string, fn func(ctx context.Context) error) error {
	key := lockKey(productID, variantKey)
	token := uuid.NewString()

	for {
		ok, err := g.client.SetNX(ctx, key, token, g.lease).Result()
		if err != nil {
			return fmt.Errorf("redis guard: lock %q: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis guard: wait for %q: %w", key, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go g.keepAlive(ctx, key, token, stop, renewed)

	defer func() {
		close(stop)
		<-renewed
		_ = releaseLockScript.Run(context.WithoutCancel(ctx), g.client, []string{key}, token).Err()
	}()

	return fn(ctx)
}

func (g *RedisGuard) keepAlive(ctx context.Context, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(g.lease/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := extendLockScript.Run(context.WithoutCancel(ctx), g.client, []string{key}, token, g.lease.Milliseconds()).Int()
			if err != nil || ok == 0 {
				return
			}
		}
	}
}
