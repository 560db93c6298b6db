package waitlist_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-waitlist/internal/waitlist"
)

// WebhookError carries an HTTP status plus separate public and internal
// messages so signature failures never leak detail to the caller.
type WebhookError struct {
	StatusCode    int
	PublicError   string
	InternalError string
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook handles POST /webhook/stripe. The payment collaborator
// completes checkout externally; a verified checkout.session.completed event
// carrying event_id/user_id/entry_id metadata is the signal to confirm the
// purchase against the waiting list.
func (h *Handler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.processStripeWebhook(r); err != nil {
		var whErr *WebhookError
		if e, ok := err.(*WebhookError); ok {
			whErr = e
		} else {
			whErr = &WebhookError{
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Webhook processing error",
				InternalError: err.Error(),
			}
		}
		h.logError(whErr.InternalError)
		http.Error(w, whErr.PublicError, whErr.StatusCode)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) processStripeWebhook(r *http.Request) error {
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return &WebhookError{
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to read webhook payload: %v", err),
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), webhookSecret, opts)
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("webhook signature verification failed: %v", err),
		}
	}

	h.logInfo(fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	if event.Type != "checkout.session.completed" {
		// Other event types are acknowledged and ignored.
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("failed to unmarshal checkout session: %v", err),
		}
	}

	eventID := session.Metadata["event_id"]
	userID := session.Metadata["user_id"]
	entryID := session.Metadata["entry_id"]
	if eventID == "" || userID == "" || entryID == "" {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: "checkout session metadata missing event_id, user_id or entry_id",
		}
	}

	proof := waitlist.PurchaseProof{
		PaymentRef: session.ID,
		Amount:     float64(session.AmountTotal) / 100,
	}

	ticket, err := h.Queue.ConfirmPurchase(r.Context(), eventID, userID, entryID, proof)
	if err != nil {
		// Terminal failures are acknowledged with 200: Stripe retries a
		// non-2xx delivery, and retrying an expired or foreign offer can
		// never succeed.
		if isTerminalPurchaseError(err) {
			h.logError(fmt.Sprintf("purchase for entry %s cannot succeed, acknowledging webhook: %v", entryID, err))
			return nil
		}
		return &WebhookError{
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process ticket purchase",
			InternalError: fmt.Sprintf("confirm purchase for entry %s failed: %v", entryID, err),
		}
	}

	h.logInfo(fmt.Sprintf("Issued ticket %s for entry %s", ticket.TicketID, entryID))
	return nil
}

func isTerminalPurchaseError(err error) bool {
	for _, terminal := range []error{
		waitlist.ErrOfferNotFound,
		waitlist.ErrOfferNotOffered,
		waitlist.ErrOfferExpired,
		waitlist.ErrOwnershipMismatch,
		waitlist.ErrEventNotFound,
		waitlist.ErrEventCancelled,
		waitlist.ErrStaleTransition,
		waitlist.ErrSoldOut,
	} {
		if errors.Is(err, terminal) {
			return true
		}
	}
	return false
}
