package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"ms-waitlist/internal/models"
)

type DBLayer interface {
	CountCommitted(ctx context.Context, eventID string) (int, error)
	GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
}

// Service is the ticket ledger. It counts committed tickets for capacity
// accounting and builds new tickets for the purchase flow.
type Service struct {
	DB DBLayer
}

func NewService(db DBLayer) *Service {
	return &Service{DB: db}
}

func (s *Service) CountCommitted(ctx context.Context, eventID string) (int, error) {
	return s.DB.CountCommitted(ctx, eventID)
}

func (s *Service) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByUser(ctx, userID)
}

func (s *Service) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, ticketID)
}

// IssueTicket builds a valid ticket with an embedded QR payload. The caller
// is responsible for persisting it atomically with the waiting-list entry
// transition; the ticket is not written here.
func (s *Service) IssueTicket(eventID, userID, paymentRef string, amount float64, purchasedAt time.Time) (*models.Ticket, error) {
	ticketID := uuid.NewString()

	qrPayload := fmt.Sprintf("ticket:%s|event:%s|user:%s", ticketID, eventID, userID)
	qrPNG, err := qrcode.Encode(qrPayload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ticket QR code: %w", err)
	}

	return &models.Ticket{
		TicketID:    ticketID,
		EventID:     eventID,
		UserID:      userID,
		Status:      models.TicketStatusValid,
		PaymentRef:  paymentRef,
		Amount:      amount,
		QRCode:      qrPNG,
		PurchasedAt: purchasedAt,
	}, nil
}
