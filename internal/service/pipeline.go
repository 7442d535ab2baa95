package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/apperr"
	"github.com/haahuss/Ticketing-Security-Gate/internal/repository"
	"github.com/haahuss/Ticketing-Security-Gate/internal/token"
)

// ErrEphemeralStore marks a failure in the rate limiter, idempotency
// cache, or replay guard. Per spec these three gates fail closed: the
// request is rejected with a 5xx rather than silently admitted or
// rerouted to the offline queue, because skipping them would itself
// violate the single-redemption invariant the durable store alone
// cannot restore.
var ErrEphemeralStore = apperr.ServiceUnavailable("EPHEMERAL_STORE_UNAVAILABLE", "rate limit, idempotency, or replay guard store is unreachable")

// ValidateRequest is one inbound /validate call.
type ValidateRequest struct {
	QRToken        string
	EventID        string
	IdempotencyKey string
	IP             string
	UserAgent      string
}

// The following interfaces are the pipeline's dependency ports. Per
// spec.md §9's re-architecture note, the pipeline depends on these
// rather than on *RateLimiter/*Idempotency/etc directly, so a test
// harness can substitute in-memory fakes for the ephemeral store and a
// scratch durable store without touching Redis or Postgres. The
// concrete *RateLimiter, *Idempotency, *ReplayGuard, *OfflineQueue,
// *repository.RedemptionRepository, and *repository.AuditRepository
// types all satisfy these structurally.
type rateLimiterPort interface {
	Admit(ctx context.Context, origin string) (bool, error)
}

type idempotencyPort interface {
	Lookup(ctx context.Context, key string) (json.RawMessage, bool, error)
	Memo(ctx context.Context, key string, reply interface{}) error
}

type replayGuardPort interface {
	Claim(ctx context.Context, eventID, nonce string) (bool, error)
}

type offlineQueuePort interface {
	IsOffline(ctx context.Context) (bool, error)
	Enqueue(ctx context.Context, entry domain.OfflineQueueEntry) error
}

type redemptionPort interface {
	FetchTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	CommitRedemption(ctx context.Context, ticketID, eventID string, audit domain.AuditLogEntry) error
}

type auditPort interface {
	Insert(ctx context.Context, entry domain.AuditLogEntry) error
}

// Pipeline orchestrates C1-C6 for every /validate call (C7). It holds
// no request-scoped mutable state of its own; every cross-request fact
// lives in the ephemeral or durable store, per spec.md §5's "no
// in-process shared mutable state" rule.
type Pipeline struct {
	RateLimiter   rateLimiterPort
	Idempotency   idempotencyPort
	ReplayGuard   replayGuardPort
	OfflineQueue  offlineQueuePort
	Redemptions   redemptionPort
	Audit         auditPort
	SigningSecret []byte
}

// Validate runs the ordered gate sequence and returns the terminal
// decision. A non-nil error means a store call the pipeline does not
// degrade around failed: an ephemeral-store gate (C2/C3/C4), the
// offline flag or queue, an audit write, or decoding a memoized reply.
// The decision is never valid in that case.
func (p *Pipeline) Validate(ctx context.Context, req ValidateRequest) (*domain.Decision, error) {
	// 1. Idempotency lookup. A hit returns verbatim: no audit, no
	// further side effects, not even a fresh decision_id recorded.
	if req.IdempotencyKey != "" {
		raw, hit, err := p.Idempotency.Lookup(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
		}
		if hit {
			var d domain.Decision
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("pipeline: corrupt memo: %w", err)
			}
			return &d, nil
		}
	}

	decisionID := uuid.NewString()

	finish := func(status domain.Status, reason domain.ReasonCode, ticketID *string) (*domain.Decision, error) {
		d := &domain.Decision{
			Status:     status,
			ReasonCode: reason,
			TicketID:   ticketID,
			DecisionID: decisionID,
		}
		if status != domain.StatusAccepted {
			if err := p.Audit.Insert(ctx, domain.AuditLogEntry{
				DecisionID: decisionID,
				IP:         req.IP,
				UserAgent:  req.UserAgent,
				EventID:    req.EventID,
				TicketID:   ticketID,
				Status:     status,
				ReasonCode: reason,
			}); err != nil {
				return nil, fmt.Errorf("pipeline: write audit: %w", err)
			}
		}
		if req.IdempotencyKey != "" {
			if err := p.Idempotency.Memo(ctx, req.IdempotencyKey, d); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
			}
		}
		return d, nil
	}

	// 2. Rate admission.
	admitted, err := p.RateLimiter.Admit(ctx, req.IP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
	}
	if !admitted {
		return finish(domain.StatusRejected, domain.ReasonRateLimited, nil)
	}

	// 3. Token verify.
	claims, kind := token.Verify(req.QRToken, p.SigningSecret)
	if kind == token.ErrInvalid {
		return finish(domain.StatusRejected, domain.ReasonInvalidToken, nil)
	}
	if kind == token.ErrExpired {
		return finish(domain.StatusRejected, domain.ReasonExpired, nil)
	}

	// 4. Event match.
	if claims.EventID != req.EventID {
		return finish(domain.StatusRejected, domain.ReasonWrongEvent, &claims.TicketID)
	}

	// 5. Replay guard.
	claimed, err := p.ReplayGuard.Claim(ctx, claims.EventID, claims.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
	}
	if !claimed {
		return finish(domain.StatusRejected, domain.ReasonReplay, &claims.TicketID)
	}

	// 6. Offline branch.
	offline, err := p.OfflineQueue.IsOffline(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
	}
	if offline {
		if err := p.OfflineQueue.Enqueue(ctx, domain.OfflineQueueEntry{
			DecisionID: decisionID,
			EventID:    claims.EventID,
			TicketID:   claims.TicketID,
			IP:         req.IP,
			UserAgent:  req.UserAgent,
		}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
		}
		return finish(domain.StatusPendingSync, domain.ReasonSystemOffline, &claims.TicketID)
	}

	// 7. Durable redemption.
	_, err = p.Redemptions.FetchTicket(ctx, claims.TicketID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return finish(domain.StatusRejected, domain.ReasonInvalidToken, &claims.TicketID)
	}
	if err != nil {
		return p.degradeToOffline(ctx, decisionID, claims, req, finish)
	}

	err = p.Redemptions.CommitRedemption(ctx, claims.TicketID, claims.EventID, domain.AuditLogEntry{
		DecisionID: decisionID,
		IP:         req.IP,
		UserAgent:  req.UserAgent,
		EventID:    claims.EventID,
		TicketID:   &claims.TicketID,
		Status:     domain.StatusAccepted,
		ReasonCode: domain.ReasonOK,
	})
	switch {
	case err == nil:
		d := &domain.Decision{
			Status:     domain.StatusAccepted,
			ReasonCode: domain.ReasonOK,
			TicketID:   &claims.TicketID,
			DecisionID: decisionID,
		}
		if req.IdempotencyKey != "" {
			if err := p.Idempotency.Memo(ctx, req.IdempotencyKey, d); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
			}
		}
		return d, nil
	case errors.Is(err, repository.ErrDuplicateRedemption):
		return finish(domain.StatusRejected, domain.ReasonReplay, &claims.TicketID)
	default:
		return p.degradeToOffline(ctx, decisionID, claims, req, finish)
	}
}

// degradeToOffline implements the FAIL branch of commit_redemption and
// the fetch_ticket I/O-error branch: any durable-store failure other
// than the UNIQUE collision reroutes to the offline queue instead of
// propagating a raw driver error to the client.
func (p *Pipeline) degradeToOffline(
	ctx context.Context,
	decisionID string,
	claims domain.TokenClaims,
	req ValidateRequest,
	finish func(domain.Status, domain.ReasonCode, *string) (*domain.Decision, error),
) (*domain.Decision, error) {
	if err := p.OfflineQueue.Enqueue(ctx, domain.OfflineQueueEntry{
		DecisionID: decisionID,
		EventID:    claims.EventID,
		TicketID:   claims.TicketID,
		IP:         req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEphemeralStore, err)
	}
	return finish(domain.StatusPendingSync, domain.ReasonSystemOffline, &claims.TicketID)
}
