package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const redisKeyPrefix = "hawkeye:ratelimit"

// StoreLimiter adapts a ulule/limiter store to the Limiter interface. The
// window semantics match MemoryLimiter except that reset times come back from
// the store at one-second resolution.
type StoreLimiter struct {
	limiter *limiter.Limiter
	client  *redis.Client
	now     func() time.Time
}

// NewStoreLimiter wraps any ulule/limiter store.
func NewStoreLimiter(store limiter.Store, max int, window time.Duration) *StoreLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	return &StoreLimiter{
		limiter: limiter.New(store, rate),
		now:     time.Now,
	}
}

// NewRedisLimiter connects to Redis and builds a shared-state limiter.
func NewRedisLimiter(redisURL string, max int, window time.Duration) (*StoreLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   redisKeyPrefix,
		MaxRetry: 3,
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create Redis rate limit store: %w", err)
	}

	l := NewStoreLimiter(store, max, window)
	l.client = client
	return l, nil
}

// Check increments the client's counter in the store.
func (l *StoreLimiter) Check(ctx context.Context, clientID string) (Decision, error) {
	lctx, err := l.limiter.Get(ctx, clientID)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store: %w", err)
	}

	resetAt := time.Unix(lctx.Reset, 0)
	d := Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   resetAt,
	}
	if lctx.Reached {
		d.Remaining = 0
		d.RetryAfter = retryAfterSeconds(resetAt, l.now())
	}
	return d, nil
}

// Ping checks that the backing Redis is reachable. Stores without a client always succeed.
func (l *StoreLimiter) Ping(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis connection, if any.
func (l *StoreLimiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
