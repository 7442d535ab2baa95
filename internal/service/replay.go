package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
)

// ReplayGuard rejects a (event, nonce) pair that has already been seen,
// independent of whether the redemption itself later succeeds. Grounded
// on _examples/original_source/app/main.py's SETNX + EXPIRE replay key
// and on the teacher's SetNX-based session guard in
// internal/repository/gateway_cache.go.
type ReplayGuard struct {
	rdb *redis.Client
	cfg config.ReplayConfig
}

func NewReplayGuard(rdb *redis.Client, cfg config.ReplayConfig) *ReplayGuard {
	return &ReplayGuard{rdb: rdb, cfg: cfg}
}

// Claim attempts to atomically mark (eventID, nonce) as seen. It
// returns true the first time a given pair is claimed and false on
// every subsequent attempt within the TTL window.
func (g *ReplayGuard) Claim(ctx context.Context, eventID, nonce string) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", g.cfg.KeyPrefix, eventID, nonce)
	ok, err := g.rdb.SetNX(ctx, key, 1, g.cfg.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("replay: claim: %w", err)
	}
	return ok, nil
}
