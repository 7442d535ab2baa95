package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
)

func TestAuditRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ticketID := "T1"
	mock.ExpectExec(`INSERT INTO audit_log_entries`).
		WithArgs("d1", "1.2.3.4", "ua", "E1", &ticketID, "REJECTED", "REPLAY").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewAuditRepository(db)
	err = repo.Insert(context.Background(), domain.AuditLogEntry{
		DecisionID: "d1",
		IP:         "1.2.3.4",
		UserAgent:  "ua",
		EventID:    "E1",
		TicketID:   &ticketID,
		Status:     domain.StatusRejected,
		ReasonCode: domain.ReasonReplay,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Insert_NilTicketID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_log_entries`).
		WithArgs("d2", "1.2.3.4", "ua", "E1", nil, "REJECTED", "RATE_LIMITED").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewAuditRepository(db)
	err = repo.Insert(context.Background(), domain.AuditLogEntry{
		DecisionID: "d2",
		IP:         "1.2.3.4",
		UserAgent:  "ua",
		EventID:    "E1",
		TicketID:   nil,
		Status:     domain.StatusRejected,
		ReasonCode: domain.ReasonRateLimited,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
