package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed keyed lock built on SET NX PX.
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	log        *zap.Logger
}

type RedisOption func(*Redis)

func WithPrefix(p string) RedisOption { return func(r *Redis) { r.prefix = p } }

func WithRetryDelay(d time.Duration) RedisOption { return func(r *Redis) { r.retryDelay = d } }

func WithLogger(log *zap.Logger) RedisOption { return func(r *Redis) { r.log = log } }

// NewRedis creates a lock whose keys expire after ttl if the holder dies.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		prefix:     "loan:lock:",
		ttl:        ttl,
		retryDelay: 10 * time.Millisecond,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("acquire lock %s: %w", k, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		// The caller's context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			r.log.Warn("release lock failed", zap.String("key", k), zap.Error(err))
		}
	}, nil
}
