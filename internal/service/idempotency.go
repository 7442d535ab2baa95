package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
)

// Idempotency memoizes the terminal reply for a client-supplied
// idempotency key, keyed the same way as
// _examples/original_source/app/idempotency.py (idem:{key}, GET/SETEX).
// Unlike the teacher's IdempotencyCoordinator (which tracks a
// processing/succeeded/failed state machine for long-running jobs),
// this gate's decisions complete within a single request, so a plain
// GET-before/SET-after pair is sufficient; see DESIGN.md.
type Idempotency struct {
	rdb *redis.Client
	cfg config.IdempotencyConfig
}

func NewIdempotency(rdb *redis.Client, cfg config.IdempotencyConfig) *Idempotency {
	return &Idempotency{rdb: rdb, cfg: cfg}
}

// Lookup returns a previously memoized reply for key, if any.
func (i *Idempotency) Lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	raw, err := i.rdb.Get(ctx, i.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: lookup: %w", err)
	}
	return json.RawMessage(raw), true, nil
}

// Memo stores reply under key for the configured TTL. Called for every
// terminal outcome once a decision_id exists, including pre-redemption
// rejections, per the Open Question resolved against
// _examples/original_source/app/main.py (idempotency memoizes the
// RATE_LIMITED branch too, not just ACCEPTED).
func (i *Idempotency) Memo(ctx context.Context, key string, reply interface{}) error {
	if key == "" {
		return nil
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("idempotency: marshal: %w", err)
	}
	if err := i.rdb.SetEx(ctx, i.redisKey(key), raw, i.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("idempotency: memo: %w", err)
	}
	return nil
}

func (i *Idempotency) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", i.cfg.KeyPrefix, key)
}
