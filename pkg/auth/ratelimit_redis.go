package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/payscope/payscope/pkg/api"
)

// redisTokenBucketScript runs the token-bucket check and refill atomically
// so concurrent API replicas share one rate limit per bank rather than each
// enforcing its own in-memory bucket.
//
// KEYS[1] = bucket key ("ratelimit:<bankID>")
// ARGV[1] = refill rate, tokens per second
// ARGV[2] = bucket capacity
// ARGV[3] = current unix time in seconds (float)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)
return allowed
`)

// RedisLimiterStore is a per-bank token bucket backed by Redis, used in
// place of TenantLimiterStore when PayScope runs with more than one API
// replica and an in-process map can't be shared between them.
type RedisLimiterStore struct {
	client *redis.Client
	rps    float64
	burst  int
}

// NewRedisLimiterStore parses a redis:// URL and returns a store handing
// out rps-per-second, burst-capacity buckets keyed by bank ID. A malformed
// URL falls back to localhost:6379 rather than failing startup — rate
// limiting degrades, it doesn't take the API down with it.
func NewRedisLimiterStore(redisURL string, rps float64, burst int) *RedisLimiterStore {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: "localhost:6379"}
	}
	return &RedisLimiterStore{
		client: redis.NewClient(opts),
		rps:    rps,
		burst:  burst,
	}
}

func (s *RedisLimiterStore) allow(ctx context.Context, bankID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", bankID)
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, s.client, []string{key}, s.rps, s.burst, now).Int64()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	return res == 1, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisLimiterStore) Close() error {
	return s.client.Close()
}

// RedisRateLimitMiddleware is the distributed counterpart to
// RateLimitMiddleware: same per-bank keying and 429 response shape, but
// the bucket state lives in Redis instead of process memory. A nil store
// disables rate limiting entirely.
func RedisRateLimitMiddleware(store *RedisLimiterStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				key = principal.GetTenantID()
			}

			allowed, err := store.allow(r.Context(), key)
			if err != nil {
				// Redis unreachable: fail open rather than blocking every
				// request behind a dead rate limiter.
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				api.WriteTooManyRequests(w, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
