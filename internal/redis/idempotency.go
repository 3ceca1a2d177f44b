package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingValue marks a key whose first request has not finished yet.
const pendingValue = "pending"

// IdempotencyGuard records the result of a request per client key. Keys are
// claimed with SETNX so only one request can run for a key at a time.
type IdempotencyGuard struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewIdempotencyGuard keeps completed keys for ttl. A claimed key that is
// never completed expires after a minute so a crashed request does not block
// its retries forever.
func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		client:     client,
		ttl:        ttl,
		pendingTTL: time.Minute,
	}
}

func (g *IdempotencyGuard) Reserve(ctx context.Context, key string) (string, bool, error) {
	ok, err := g.client.SetNX(ctx, key, pendingValue, g.pendingTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve %s: %w", key, err)
	}
	if ok {
		return "", true, nil
	}

	val, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; report it as in flight and let the client retry
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if val == pendingValue {
		return "", false, nil
	}

	return val, false, nil
}

func (g *IdempotencyGuard) Complete(ctx context.Context, key, value string) error {
	if err := g.client.Set(ctx, key, value, g.ttl).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// Release frees a key that is still pending. Completed keys are left alone.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	_, err := releaseScript.Run(ctx, g.client, []string{key}, pendingValue).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
