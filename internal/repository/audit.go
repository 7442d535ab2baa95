package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
)

// AuditRepository appends the terminal decision of every /validate
// call, independent of the redemption table, matching
// _examples/original_source/app/main.py's _audit() helper which writes
// an AuditLog row on every rejection path, not only on success.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one audit row outside of any redemption transaction.
// Used for every rejection path (RATE_LIMITED, INVALID_TOKEN, EXPIRED,
// WRONG_EVENT, REPLAY, PENDING_SYNC); the ACCEPTED path instead goes
// through insertAudit inside CommitRedemption's transaction.
func (a *AuditRepository) Insert(ctx context.Context, entry domain.AuditLogEntry) error {
	_, err := a.db.ExecContext(ctx, auditInsertSQL,
		entry.DecisionID, entry.IP, entry.UserAgent, entry.EventID,
		entry.TicketID, string(entry.Status), string(entry.ReasonCode),
	)
	if err != nil {
		return fmt.Errorf("repository: insert audit: %w", err)
	}
	return nil
}

const auditInsertSQL = `
INSERT INTO audit_log_entries
	(decision_id, ip, user_agent, event_id, ticket_id, status, reason_code, created_at)
VALUES
	($1, $2, $3, $4, $5, $6, $7, now())
`

// insertAudit is the shared statement used both by AuditRepository and
// by RedemptionRepository.CommitRedemption's transaction, so the
// ACCEPTED row goes through identical SQL to every other outcome.
func insertAudit(ctx context.Context, tx *sql.Tx, entry domain.AuditLogEntry) error {
	_, err := tx.ExecContext(ctx, auditInsertSQL,
		entry.DecisionID, entry.IP, entry.UserAgent, entry.EventID,
		entry.TicketID, string(entry.Status), string(entry.ReasonCode),
	)
	if err != nil {
		return fmt.Errorf("repository: insert audit (tx): %w", err)
	}
	return nil
}
