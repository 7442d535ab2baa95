package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
)

// OfflineQueue is the ephemeral side of degraded-mode handling (C6):
// a Redis Stream the pipeline enqueues into when the durable store is
// unreachable, and the reconciler drains. Grounded on go-redis v9's
// native Streams API (XAdd/XRead/XDel), mirroring
// _examples/original_source/app/worker.py's redis.xread/XDEL/XADD
// calls against the "offline_validations" stream.
type OfflineQueue struct {
	rdb *redis.Client
	cfg config.OfflineQueueConfig
}

func NewOfflineQueue(rdb *redis.Client, cfg config.OfflineQueueConfig) *OfflineQueue {
	return &OfflineQueue{rdb: rdb, cfg: cfg}
}

// IsOffline reports whether the gate is currently running in degraded
// mode, per the cfg:offline_mode flag the original implementation
// polls in app/worker.py's offline_enabled().
func (q *OfflineQueue) IsOffline(ctx context.Context) (bool, error) {
	v, err := q.rdb.Get(ctx, q.cfg.OfflineFlagKey).Result()
	if errors.Is(err, redis.Nil) {
		return q.cfg.DefaultOffline, nil
	}
	if err != nil {
		return false, fmt.Errorf("offlinequeue: read flag: %w", err)
	}
	return v == "1" || v == "true", nil
}

// Enqueue appends entry to the offline stream. Called both when the
// gate is deliberately in degraded mode and when a durable-store write
// fails unexpectedly mid-request (spec.md §4.7's fallback branch).
func (q *OfflineQueue) Enqueue(ctx context.Context, entry domain.OfflineQueueEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("offlinequeue: marshal: %w", err)
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.StreamKey,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("offlinequeue: enqueue: %w", err)
	}
	return nil
}

// Message is one unit of work read off the stream, paired with its
// stream ID for later acknowledgement.
type Message struct {
	ID    string
	Entry domain.OfflineQueueEntry
}

// LoadCursor returns the last-acknowledged stream ID, or "0" if the
// reconciler has never run before (read the stream from the start).
func (q *OfflineQueue) LoadCursor(ctx context.Context) (string, error) {
	v, err := q.rdb.Get(ctx, q.cfg.CursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("offlinequeue: load cursor: %w", err)
	}
	return v, nil
}

// SaveCursor persists id as the last-acknowledged stream position.
func (q *OfflineQueue) SaveCursor(ctx context.Context, id string) error {
	if err := q.rdb.Set(ctx, q.cfg.CursorKey, id, 0).Err(); err != nil {
		return fmt.Errorf("offlinequeue: save cursor: %w", err)
	}
	return nil
}

// ReadBlocking performs a blocking XREAD from after cursor, returning
// up to BatchSize messages. It returns an empty, nil-error result on a
// read timeout (no new messages), matching the original's "block=5000"
// poll-loop shape.
func (q *OfflineQueue) ReadBlocking(ctx context.Context, cursor string) ([]Message, error) {
	res, err := q.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{q.cfg.StreamKey, cursor},
		Count:   q.cfg.BatchSize,
		Block:   q.cfg.BlockReadTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("offlinequeue: read: %w", err)
	}

	var out []Message
	for _, stream := range res {
		for _, m := range stream.Messages {
			raw, ok := m.Values["payload"].(string)
			if !ok {
				continue
			}
			var entry domain.OfflineQueueEntry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				continue
			}
			out = append(out, Message{ID: m.ID, Entry: entry})
		}
	}
	return out, nil
}

// Ack removes id from the stream with XDEL. The reconciler calls this
// after the entry's commit and before SaveCursor (spec.md §4.8's
// ack-before-cursor-save ordering). A crash before Ack re-delivers the
// entry; a crash between Ack and SaveCursor leaves the cursor behind an
// entry that XREAD no longer returns, because it has been deleted.
func (q *OfflineQueue) Ack(ctx context.Context, id string) error {
	if err := q.rdb.XDel(ctx, q.cfg.StreamKey, id).Err(); err != nil {
		return fmt.Errorf("offlinequeue: ack: %w", err)
	}
	return nil
}
