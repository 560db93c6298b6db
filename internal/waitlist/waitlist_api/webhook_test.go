package waitlist_api_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-waitlist/internal/models"
	"ms-waitlist/internal/waitlist"
	"ms-waitlist/internal/waitlist/waitlist_api"
)

const webhookSecret = "whsec_test_secret"

func signedWebhookRequest(payload []byte, secret string) *http.Request {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, signature))
	return req
}

func checkoutCompletedPayload() []byte {
	return []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_123",
				"object": "checkout.session",
				"amount_total": 4999,
				"metadata": {
					"event_id": "event1",
					"user_id": "user1",
					"entry_id": "entry1"
				}
			}
		}
	}`)
}

func TestStripeWebhookConfirmsPurchase(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)

	queue := new(MockQueueService)
	queue.On("ConfirmPurchase", mock.Anything, "event1", "user1", "entry1", waitlist.PurchaseProof{
		PaymentRef: "cs_test_123",
		Amount:     float64(4999) / 100,
	}).Return(&models.Ticket{TicketID: "t1", EventID: "event1", UserID: "user1"}, nil)

	handler := waitlist_api.NewHandler(queue, nil)
	rec := httptest.NewRecorder()
	handler.HandleStripeWebhook(rec, signedWebhookRequest(checkoutCompletedPayload(), webhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	queue.AssertExpectations(t)
}

func TestStripeWebhookAcknowledgesTerminalFailure(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)

	// An expired offer can never be purchased; returning non-2xx would make
	// Stripe retry the delivery forever.
	queue := new(MockQueueService)
	queue.On("ConfirmPurchase", mock.Anything, "event1", "user1", "entry1", mock.Anything).
		Return(nil, waitlist.ErrOfferExpired)

	handler := waitlist_api.NewHandler(queue, nil)
	rec := httptest.NewRecorder()
	handler.HandleStripeWebhook(rec, signedWebhookRequest(checkoutCompletedPayload(), webhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStripeWebhookTransientFailureKeepsRetrying(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)

	queue := new(MockQueueService)
	queue.On("ConfirmPurchase", mock.Anything, "event1", "user1", "entry1", mock.Anything).
		Return(nil, assert.AnError)

	handler := waitlist_api.NewHandler(queue, nil)
	rec := httptest.NewRecorder()
	handler.HandleStripeWebhook(rec, signedWebhookRequest(checkoutCompletedPayload(), webhookSecret))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)

	queue := new(MockQueueService)
	handler := waitlist_api.NewHandler(queue, nil)
	rec := httptest.NewRecorder()
	handler.HandleStripeWebhook(rec, signedWebhookRequest(checkoutCompletedPayload(), "whsec_wrong"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	queue.AssertNotCalled(t, "ConfirmPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhookIgnoresOtherEventTypes(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)

	payload := []byte(`{"id":"evt_2","object":"event","type":"invoice.paid","data":{"object":{}}}`)

	queue := new(MockQueueService)
	handler := waitlist_api.NewHandler(queue, nil)
	rec := httptest.NewRecorder()
	handler.HandleStripeWebhook(rec, signedWebhookRequest(payload, webhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	queue.AssertNotCalled(t, "ConfirmPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
