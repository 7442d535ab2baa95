//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
	"github.com/haahuss/Ticketing-Security-Gate/internal/migrate"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	cmd := exec.CommandContext(ctx, "docker", "info")
	cmd.Env = os.Environ()
	if cmd.Run() != nil {
		if os.Getenv("CI") != "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	pg, err := tcpostgres.Run(ctx, "postgres:18.1-alpine3.23",
		tcpostgres.WithDatabase("gate_repo_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = pg.Terminate(ctx) }()

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		os.Exit(1)
	}
	if err := migrate.Up(dsn); err != nil {
		os.Exit(1)
	}

	testDB, err = sql.Open("postgres", dsn)
	if err != nil {
		os.Exit(1)
	}
	defer testDB.Close()

	os.Exit(m.Run())
}

func seedTicket(t *testing.T, ticketID, eventID, orgID string) {
	t.Helper()
	ctx := context.Background()
	_, err := testDB.ExecContext(ctx, `INSERT INTO events (id, name, org_id) VALUES ($1, $1, $2) ON CONFLICT DO NOTHING`, eventID, orgID)
	require.NoError(t, err)
	_, err = testDB.ExecContext(ctx, `INSERT INTO tickets (id, event_id, org_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, ticketID, eventID, orgID)
	require.NoError(t, err)
}

func truncateAll(t *testing.T) {
	t.Helper()
	_, err := testDB.ExecContext(context.Background(),
		`TRUNCATE audit_log_entries, redemptions, tickets, events RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func TestCommitRedemption_SecondAttemptIsDuplicate(t *testing.T) {
	truncateAll(t)
	seedTicket(t, "T1", "E1", "org1")
	repo := NewRedemptionRepository(testDB)
	ticketID := "T1"

	err := repo.CommitRedemption(context.Background(), "T1", "E1", domain.AuditLogEntry{
		DecisionID: "d1", EventID: "E1", TicketID: &ticketID,
		Status: domain.StatusAccepted, ReasonCode: domain.ReasonOK,
	})
	require.NoError(t, err)

	err = repo.CommitRedemption(context.Background(), "T1", "E1", domain.AuditLogEntry{
		DecisionID: "d2", EventID: "E1", TicketID: &ticketID,
		Status: domain.StatusAccepted, ReasonCode: domain.ReasonOK,
	})
	require.True(t, errors.Is(err, ErrDuplicateRedemption))

	var count int
	require.NoError(t, testDB.QueryRowContext(context.Background(),
		`SELECT count(*) FROM redemptions WHERE ticket_id = 'T1' AND event_id = 'E1'`).Scan(&count))
	assert.Equal(t, 1, count, "universal property 1: at most one redemption row per (ticket, event)")
}

func TestCommitRedemption_ConcurrentOnlyOneWins(t *testing.T) {
	truncateAll(t)
	seedTicket(t, "T2", "E1", "org1")
	repo := NewRedemptionRepository(testDB)
	ticketID := "T2"

	var wg sync.WaitGroup
	successes := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.CommitRedemption(context.Background(), "T2", "E1", domain.AuditLogEntry{
				DecisionID: "d", EventID: "E1", TicketID: &ticketID,
				Status: domain.StatusAccepted, ReasonCode: domain.ReasonOK,
			})
			successes <- err == nil
		}(i)
	}
	wg.Wait()
	close(successes)

	wins := 0
	for ok := range successes {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestFetchTicket_NotFound(t *testing.T) {
	truncateAll(t)
	repo := NewRedemptionRepository(testDB)

	_, err := repo.FetchTicket(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, ErrTicketNotFound))
}
