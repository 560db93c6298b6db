package waitlist_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-waitlist/internal/auth"
	"ms-waitlist/internal/logger"
	"ms-waitlist/internal/models"
	"ms-waitlist/internal/waitlist"
)

// QueueService is the slice of the admission engine the HTTP layer needs.
type QueueService interface {
	Join(ctx context.Context, eventID, userID string) (*models.JoinResult, error)
	GetPosition(ctx context.Context, eventID, userID string) (*models.QueuePosition, error)
	GetAvailability(ctx context.Context, eventID string) (*models.Availability, error)
	Release(ctx context.Context, eventID, entryID, userID string) error
	ConfirmPurchase(ctx context.Context, eventID, userID, entryID string, proof waitlist.PurchaseProof) (*models.Ticket, error)
}

type Handler struct {
	Queue  QueueService
	Logger *logger.Logger
}

func NewHandler(queue QueueService, log *logger.Logger) *Handler {
	return &Handler{Queue: queue, Logger: log}
}

// Join handles POST /api/waitlist/{eventId}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.logInfo(fmt.Sprintf("Join: eventId=%s userId=%s", eventID, userID))

	result, err := h.Queue.Join(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// GetPosition handles GET /api/waitlist/{eventId}/position.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())

	pos, err := h.Queue.GetPosition(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if pos == nil {
		http.Error(w, "not in waiting list for this event", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, pos)
}

// GetAvailability handles GET /api/waitlist/{eventId}/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	avail, err := h.Queue.GetAvailability(r.Context(), eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, avail)
}

// Release handles POST /api/waitlist/{eventId}/release/{entryId}.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	entryID := chi.URLParam(r, "entryId")
	userID := auth.UserID(r.Context())
	h.logInfo(fmt.Sprintf("Release: eventId=%s entryId=%s userId=%s", eventID, entryID, userID))

	if err := h.Queue.Release(r.Context(), eventID, entryID, userID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusReleased})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logError(fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) logInfo(message string) {
	if h.Logger != nil {
		h.Logger.Info("API", message)
	}
}

func (h *Handler) logError(message string) {
	if h.Logger != nil {
		h.Logger.Error("API", message)
	}
}

// writeError maps the queue error taxonomy onto HTTP statuses. Every status
// is distinguishable so the UI can render "offer expired" vs "sold out" vs
// "still waiting" correctly.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, waitlist.ErrEventNotFound), errors.Is(err, waitlist.ErrOfferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, waitlist.ErrAlreadyQueued), errors.Is(err, waitlist.ErrDuplicateActiveEntry):
		status = http.StatusConflict
	case errors.Is(err, waitlist.ErrOfferExpired), errors.Is(err, waitlist.ErrOfferNotOffered), errors.Is(err, waitlist.ErrStaleTransition), errors.Is(err, waitlist.ErrSoldOut):
		status = http.StatusConflict
	case errors.Is(err, waitlist.ErrEventCancelled):
		status = http.StatusGone
	case errors.Is(err, waitlist.ErrOwnershipMismatch):
		status = http.StatusForbidden
	case errors.Is(err, waitlist.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		h.logError(fmt.Sprintf("internal error: %v", err))
		http.Error(w, "internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}
