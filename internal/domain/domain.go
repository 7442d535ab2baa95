// Package domain holds the data types shared by every gate component.
package domain

import "time"

// Ticket is provisioned out of band (see spec.md §1) and is immutable
// once issued. The gate only ever reads it.
type Ticket struct {
	ID       string
	EventID  string
	OrgID    string
}

// Event groups tickets under an organization.
type Event struct {
	ID        string
	Name      string
	OrgID     string
	CreatedAt time.Time
}

// Redemption is the durable, unique-per-(ticket,event) record that is
// the sole authority for exactly-one redemption.
type Redemption struct {
	Sequence    int64
	TicketID    string
	EventID     string
	RedeemedAt  time.Time
}

// Status is the terminal outcome carried in a decision and in every
// audit row.
type Status string

const (
	StatusAccepted    Status = "ACCEPTED"
	StatusRejected    Status = "REJECTED"
	StatusPendingSync Status = "PENDING_SYNC"
)

// ReasonCode is the stable taxonomy external log consumers depend on.
// See spec.md §7.
type ReasonCode string

const (
	ReasonOK             ReasonCode = "OK"
	ReasonOKSynced       ReasonCode = "OK_SYNCED"
	ReasonRateLimited    ReasonCode = "RATE_LIMITED"
	ReasonInvalidToken   ReasonCode = "INVALID_TOKEN"
	ReasonExpired        ReasonCode = "EXPIRED"
	ReasonWrongEvent     ReasonCode = "WRONG_EVENT"
	ReasonReplay         ReasonCode = "REPLAY"
	ReasonReplayOnSync   ReasonCode = "REPLAY_ON_SYNC"
	ReasonSystemOffline  ReasonCode = "SYSTEM_OFFLINE"
)

// AuditLogEntry is the append-only record of every terminal decision.
type AuditLogEntry struct {
	Sequence   int64
	DecisionID string
	IP         string
	UserAgent  string
	EventID    string
	TicketID   *string // absent if rejection occurred before extraction
	Status     Status
	ReasonCode ReasonCode
	CreatedAt  time.Time
}

// TokenClaims is the transient, never-persisted claim set extracted
// from a verified credential. All five fields are required for a
// claim set to be considered valid.
type TokenClaims struct {
	TicketID string `json:"ticket_id"`
	EventID  string `json:"event_id"`
	OrgID    string `json:"org_id"`
	Nonce    string `json:"nonce"`
	Exp      int64  `json:"exp"`
}

// OfflineQueueEntry is the payload threaded through the offline stream
// and re-applied by the reconciler.
type OfflineQueueEntry struct {
	DecisionID string
	EventID    string
	TicketID   string
	IP         string
	UserAgent  string
}

// Decision is the outcome produced by the pipeline for one /validate
// call.
type Decision struct {
	Status     Status     `json:"status"`
	ReasonCode ReasonCode `json:"reason_code"`
	TicketID   *string    `json:"ticket_id"`
	DecisionID string     `json:"decision_id"`
}
