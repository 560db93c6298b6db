package tickets_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-waitlist/internal/models"
	"ms-waitlist/internal/tickets"
	ticketdb "ms-waitlist/internal/tickets/db"
)

func setupService(t *testing.T) (*tickets.Service, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(context.Background())
	require.NoError(t, err)

	return tickets.NewService(&ticketdb.DB{Bun: bunDB}), bunDB
}

func seedTicket(t *testing.T, bunDB *bun.DB, id, eventID, userID, status string) {
	ticket := &models.Ticket{
		TicketID:    id,
		EventID:     eventID,
		UserID:      userID,
		Status:      status,
		PurchasedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(ticket).Exec(context.Background())
	require.NoError(t, err)
}

func TestCountCommittedOnlyCountsValidAndUsed(t *testing.T) {
	service, bunDB := setupService(t)
	ctx := context.Background()

	seedTicket(t, bunDB, "t1", "event1", "u1", models.TicketStatusValid)
	seedTicket(t, bunDB, "t2", "event1", "u2", models.TicketStatusUsed)
	seedTicket(t, bunDB, "t3", "event1", "u3", models.TicketStatusRefunded)
	seedTicket(t, bunDB, "t4", "event1", "u4", models.TicketStatusCancelled)
	seedTicket(t, bunDB, "t5", "event2", "u5", models.TicketStatusValid)

	count, err := service.CountCommitted(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIssueTicket(t *testing.T) {
	service, _ := setupService(t)
	purchasedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ticket, err := service.IssueTicket("event1", "user1", "cs_test_123", 49.99, purchasedAt)
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.TicketID)
	assert.Equal(t, "event1", ticket.EventID)
	assert.Equal(t, "user1", ticket.UserID)
	assert.Equal(t, models.TicketStatusValid, ticket.Status)
	assert.Equal(t, "cs_test_123", ticket.PaymentRef)
	assert.Equal(t, 49.99, ticket.Amount)
	assert.Equal(t, purchasedAt, ticket.PurchasedAt)
	assert.NotEmpty(t, ticket.QRCode, "expected an encoded QR payload")
}

func TestGetTicketsByUser(t *testing.T) {
	service, bunDB := setupService(t)
	ctx := context.Background()

	seedTicket(t, bunDB, "t1", "event1", "user1", models.TicketStatusValid)
	seedTicket(t, bunDB, "t2", "event2", "user1", models.TicketStatusUsed)
	seedTicket(t, bunDB, "t3", "event1", "user2", models.TicketStatusValid)

	got, err := service.GetTicketsByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
