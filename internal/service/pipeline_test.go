package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
	"github.com/haahuss/Ticketing-Security-Gate/internal/repository"
	"github.com/haahuss/Ticketing-Security-Gate/internal/token"
)

// The fakes below are the in-memory substitutes spec.md §9 calls for:
// a scratch ephemeral store and a scratch durable store, so the
// pipeline's gate ordering and error handling can be unit tested
// without Redis or Postgres.

type fakeRateLimiter struct {
	mu      sync.Mutex
	admit   bool
	err     error
	calls   int
}

func (f *fakeRateLimiter) Admit(ctx context.Context, origin string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.admit, f.err
}

type fakeIdempotency struct {
	mu    sync.Mutex
	store map[string]json.RawMessage
	err   error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{store: map[string]json.RawMessage{}}
}

func (f *fakeIdempotency) Lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.store[key]
	return v, ok, nil
}

func (f *fakeIdempotency) Memo(ctx context.Context, key string, reply interface{}) error {
	if f.err != nil {
		return f.err
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = raw
	return nil
}

type fakeReplayGuard struct {
	mu     sync.Mutex
	claims map[string]bool
	err    error
}

func newFakeReplayGuard() *fakeReplayGuard {
	return &fakeReplayGuard{claims: map[string]bool{}}
}

func (f *fakeReplayGuard) Claim(ctx context.Context, eventID, nonce string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventID + ":" + nonce
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

type fakeOfflineQueue struct {
	mu      sync.Mutex
	offline bool
	err     error
	entries []domain.OfflineQueueEntry
}

func (f *fakeOfflineQueue) IsOffline(ctx context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.offline, nil
}

func (f *fakeOfflineQueue) Enqueue(ctx context.Context, entry domain.OfflineQueueEntry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRedemptions struct {
	mu         sync.Mutex
	tickets    map[string]domain.Ticket
	redeemed   map[string]bool
	fetchErr   error
	commitErr  error
}

func newFakeRedemptions() *fakeRedemptions {
	return &fakeRedemptions{tickets: map[string]domain.Ticket{}, redeemed: map[string]bool{}}
}

func (f *fakeRedemptions) FetchTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return &t, nil
}

func (f *fakeRedemptions) CommitRedemption(ctx context.Context, ticketID, eventID string, audit domain.AuditLogEntry) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ticketID + ":" + eventID
	if f.redeemed[key] {
		return repository.ErrDuplicateRedemption
	}
	f.redeemed[key] = true
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (f *fakeAudit) Insert(ctx context.Context, entry domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

const secret = "test-secret"

func mint(t *testing.T, ticketID, eventID, orgID, nonce string, ttl time.Duration) string {
	t.Helper()
	s, err := token.Mint(ticketID, eventID, orgID, nonce, ttl, []byte(secret))
	require.NoError(t, err)
	return s
}

func newTestPipeline() (*Pipeline, *fakeRedemptions, *fakeAudit, *fakeReplayGuard, *fakeOfflineQueue) {
	redemptions := newFakeRedemptions()
	redemptions.tickets["T1"] = domain.Ticket{ID: "T1", EventID: "E", OrgID: "org"}
	audit := &fakeAudit{}
	replay := newFakeReplayGuard()
	offline := &fakeOfflineQueue{}
	p := &Pipeline{
		RateLimiter:   &fakeRateLimiter{admit: true},
		Idempotency:   newFakeIdempotency(),
		ReplayGuard:   replay,
		OfflineQueue:  offline,
		Redemptions:   redemptions,
		Audit:         audit,
		SigningSecret: []byte(secret),
	}
	return p, redemptions, audit, replay, offline
}

func TestValidate_AcceptsFreshTicket(t *testing.T) {
	p, _, audit, _, _ := newTestPipeline()
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, d.Status)
	assert.Equal(t, domain.ReasonOK, d.ReasonCode)
	assert.Empty(t, audit.entries, "ACCEPTED is written by CommitRedemption's transaction, not a second audit call")
}

func TestValidate_ReplayOnSecondAttempt(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	first, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, first.Status)

	second, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, second.Status)
	assert.Equal(t, domain.ReasonReplay, second.ReasonCode)
}

func TestValidate_RateLimited(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	p.RateLimiter = &fakeRateLimiter{admit: false}
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, d.Status)
	assert.Equal(t, domain.ReasonRateLimited, d.ReasonCode)
	assert.Nil(t, d.TicketID)
}

func TestValidate_ExpiredToken(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	tok := mint(t, "T1", "E", "org", "n1", -time.Minute)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, d.Status)
	assert.Equal(t, domain.ReasonExpired, d.ReasonCode)
}

func TestValidate_WrongEvent(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	tok := mint(t, "T1", "E1", "org", "n1", time.Hour)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E2"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, d.Status)
	assert.Equal(t, domain.ReasonWrongEvent, d.ReasonCode)
	require.NotNil(t, d.TicketID)
	assert.Equal(t, "T1", *d.TicketID)
}

func TestValidate_OfflineBranchEnqueues(t *testing.T) {
	p, _, _, _, offline := newTestPipeline()
	offline.offline = true
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingSync, d.Status)
	assert.Equal(t, domain.ReasonSystemOffline, d.ReasonCode)
	require.Len(t, offline.entries, 1)
	assert.Equal(t, d.DecisionID, offline.entries[0].DecisionID)
}

func TestValidate_UnknownTicketAfterVerify(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	tok := mint(t, "unknown-ticket", "E", "org", "n1", time.Hour)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, d.Status)
	assert.Equal(t, domain.ReasonInvalidToken, d.ReasonCode)
}

func TestValidate_DurableFailureDegradesToOffline(t *testing.T) {
	p, redemptions, _, _, offline := newTestPipeline()
	redemptions.commitErr = assertAnError{}
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	d, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingSync, d.Status)
	assert.Equal(t, domain.ReasonSystemOffline, d.ReasonCode)
	assert.Len(t, offline.entries, 1)
}

func TestValidate_IdempotentReplyIsVerbatim(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	req := ValidateRequest{QRToken: tok, EventID: "E", IdempotencyKey: "idem-1"}
	first, err := p.Validate(context.Background(), req)
	require.NoError(t, err)

	second, err := p.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidate_EphemeralFailureIsFatal(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()
	p.ReplayGuard = &fakeReplayGuard{err: assertAnError{}}
	tok := mint(t, "T1", "E", "org", "n1", time.Hour)

	_, err := p.Validate(context.Background(), ValidateRequest{QRToken: tok, EventID: "E"})
	require.Error(t, err)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
