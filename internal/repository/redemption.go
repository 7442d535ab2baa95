// Package repository holds the durable-store (Postgres) data access
// used by the decision pipeline and reconciler. Grounded on the
// teacher's internal/repository layer: raw database/sql with $N
// placeholders, no ORM, and the
// "INSERT ... ON CONFLICT DO NOTHING RETURNING id" pattern from
// internal/repository/idempotency_repo.go used here to detect a
// duplicate redemption without parsing a driver error code.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
)

// ErrTicketNotFound indicates the ticket_id on a verified token does
// not exist in the durable store.
var ErrTicketNotFound = errors.New("repository: ticket not found")

// ErrDuplicateRedemption indicates (ticket_id, event_id) was already
// redeemed; this is the REPLAY outcome for a durable-path check.
var ErrDuplicateRedemption = errors.New("repository: duplicate redemption")

// RedemptionRepository is the durable authority for exactly-one
// redemption per (ticket_id, event_id), backed by a UNIQUE constraint.
type RedemptionRepository struct {
	db *sql.DB
}

func NewRedemptionRepository(db *sql.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// FetchTicket loads a ticket by ID. A missing row is reported as
// ErrTicketNotFound rather than sql.ErrNoRows so callers never need to
// import database/sql to interpret the result.
func (r *RedemptionRepository) FetchTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, org_id FROM tickets WHERE id = $1`,
		ticketID,
	).Scan(&t.ID, &t.EventID, &t.OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: fetch ticket: %w", err)
	}
	return &t, nil
}

// EventExists reports whether eventID is a known event.
func (r *RedemptionRepository) EventExists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: event exists: %w", err)
	}
	return exists, nil
}

// CommitRedemption writes the redemption row and its audit row in the
// same transaction so an ACCEPTED decision is never recorded in one
// table without the other (spec.md §4.5). The audit row's status and
// reason code come from the caller (ACCEPTED/OK from the pipeline,
// ACCEPTED/OK_SYNCED from the reconciler); this method only performs
// the write.
func (r *RedemptionRepository) CommitRedemption(
	ctx context.Context,
	ticketID, eventID string,
	audit domain.AuditLogEntry,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO redemptions (ticket_id, event_id, redeemed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (ticket_id, event_id) DO NOTHING
		 RETURNING id`,
		ticketID, eventID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateRedemption
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("repository: commit redemption (%s): %w", pqErr.Code, err)
		}
		return fmt.Errorf("repository: commit redemption: %w", err)
	}

	if err := insertAudit(ctx, tx, audit); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit tx: %w", err)
	}
	return nil
}
