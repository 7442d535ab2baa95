// Package service holds the gate's stateful components (C2-C4, C6-C8).
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
)

// tokenBucketScript performs the refill-then-admit decision atomically
// inside Redis, closing the race the original implementation left open
// with its separate HGETALL/HSET calls (see DESIGN.md). Grounded on the
// teacher's redis.NewScript usage in
// internal/repository/gateway_cache.go and
// internal/service/ops_cleanup_service.go.
var tokenBucketScript = redis.NewScript(`
local bucket_key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_sec = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", bucket_key, "tokens", "last")
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(capacity, tokens + elapsed * refill_per_sec)

local admitted = 0
if tokens >= 1.0 then
  tokens = tokens - 1.0
  admitted = 1
end

redis.call("HSET", bucket_key, "tokens", tostring(tokens), "last", tostring(now))
redis.call("EXPIRE", bucket_key, 3600)

return admitted
`)

// RateLimiter enforces a per-origin token bucket (C2). It fails closed:
// any ephemeral-store error means "not admitted" rather than letting
// traffic through, per the Open Question resolved against
// _examples/original_source/app/main.py (no fallback branch exists
// there when the store is unreachable).
type RateLimiter struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{rdb: rdb, cfg: cfg}
}

// Admit reports whether origin may proceed right now, consuming one
// token if so. On any Redis error it returns (false, err); the pipeline
// turns that into ErrEphemeralStore (a 503), never into an admission.
func (r *RateLimiter) Admit(ctx context.Context, origin string) (bool, error) {
	key := fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, origin)
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := tokenBucketScript.Run(ctx, r.rdb, []string{key}, r.cfg.CapacityTokens, r.cfg.RefillPerSecond, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: admit: %w", err)
	}
	admitted, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("ratelimit: unexpected script result %T", res)
	}
	return admitted == 1, nil
}
