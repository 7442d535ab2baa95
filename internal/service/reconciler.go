package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
	"github.com/haahuss/Ticketing-Security-Gate/internal/repository"
)

// reconcilerReleaseScript safely releases the leader lock only if this
// instance still holds it, the compare-and-delete pattern used by the
// teacher's internal/service/ops_cleanup_service.go.
var reconcilerReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Reconciler is the independent drain loop (C8). It owns its own
// cursor and leader election so at most one process in a fleet drains
// the offline queue at a time, grounded on the teacher's
// OpsCleanupService Start/Stop/leader-lock shape, adapted from a cron
// schedule to a continuous block-read loop per spec.md §4.8.
type Reconciler struct {
	rdb         *redis.Client
	queue       *OfflineQueue
	redemptions *repository.RedemptionRepository
	audit       *repository.AuditRepository
	cfg         config.OfflineQueueConfig
	instanceID  string
	log         *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewReconciler(
	rdb *redis.Client,
	queue *OfflineQueue,
	redemptions *repository.RedemptionRepository,
	audit *repository.AuditRepository,
	cfg config.OfflineQueueConfig,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{
		rdb:         rdb,
		queue:       queue,
		redemptions: redemptions,
		audit:       audit,
		cfg:         cfg,
		instanceID:  uuid.NewString(),
		log:         log,
		done:        make(chan struct{}),
	}
}

// Start launches the background drain loop. Safe to call once; later
// calls are no-ops.
func (r *Reconciler) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go r.loop(loopCtx)
	})
}

// Stop signals the drain loop to exit and waits for it to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		<-r.done
	})
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		offline, err := r.queue.IsOffline(ctx)
		if err != nil {
			r.log.Error("reconciler: read offline flag", "error", err)
			time.Sleep(r.cfg.OfflinePollInterval)
			continue
		}
		if offline {
			time.Sleep(r.cfg.OfflinePollInterval)
			continue
		}

		release, ok := r.tryAcquireLeaderLock(ctx)
		if !ok {
			time.Sleep(r.cfg.OfflinePollInterval)
			continue
		}
		r.drainOnce(ctx)
		if release != nil {
			release()
		}
	}
}

func (r *Reconciler) tryAcquireLeaderLock(ctx context.Context) (func(), bool) {
	ok, err := r.rdb.SetNX(ctx, r.cfg.LeaderLockKey, r.instanceID, r.cfg.LeaderLockTTL).Result()
	if err != nil {
		r.log.Error("reconciler: acquire leader lock", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return func() {
		if _, err := reconcilerReleaseScript.Run(ctx, r.rdb, []string{r.cfg.LeaderLockKey}, r.instanceID).Result(); err != nil {
			r.log.Warn("reconciler: release leader lock", "error", err)
		}
	}, true
}

// drainOnce performs one block-read-then-apply pass, per spec.md §4.8:
// block-read up to batch_size entries, attempt commit_redemption for
// each with status suffix OK_SYNCED, and on a UNIQUE violation write a
// single REPLAY_ON_SYNC audit row instead. Any other failure stops the
// batch, leaving the remaining entries (and this one) in the queue
// with the cursor unadvanced.
func (r *Reconciler) drainOnce(ctx context.Context) {
	cursor, err := r.queue.LoadCursor(ctx)
	if err != nil {
		r.log.Error("reconciler: load cursor", "error", err)
		return
	}

	msgs, err := r.queue.ReadBlocking(ctx, cursor)
	if err != nil {
		r.log.Error("reconciler: read stream", "error", err)
		return
	}

	for _, msg := range msgs {
		if err := r.apply(ctx, msg.Entry); err != nil {
			r.log.Error("reconciler: apply entry, stopping batch", "decision_id", msg.Entry.DecisionID, "error", err)
			return
		}
		if err := r.queue.Ack(ctx, msg.ID); err != nil {
			r.log.Error("reconciler: ack entry, stopping batch", "decision_id", msg.Entry.DecisionID, "error", err)
			return
		}
		if err := r.queue.SaveCursor(ctx, msg.ID); err != nil {
			r.log.Error("reconciler: save cursor, stopping batch", "error", err)
			return
		}
	}
}

func (r *Reconciler) apply(ctx context.Context, entry domain.OfflineQueueEntry) error {
	ticketID := entry.TicketID
	err := r.redemptions.CommitRedemption(ctx, entry.TicketID, entry.EventID, domain.AuditLogEntry{
		DecisionID: entry.DecisionID,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		EventID:    entry.EventID,
		TicketID:   &ticketID,
		Status:     domain.StatusAccepted,
		ReasonCode: domain.ReasonOKSynced,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateRedemption):
		return r.audit.Insert(ctx, domain.AuditLogEntry{
			DecisionID: entry.DecisionID,
			IP:         entry.IP,
			UserAgent:  entry.UserAgent,
			EventID:    entry.EventID,
			TicketID:   &ticketID,
			Status:     domain.StatusRejected,
			ReasonCode: domain.ReasonReplayOnSync,
		})
	default:
		return fmt.Errorf("reconciler: commit redemption: %w", err)
	}
}
