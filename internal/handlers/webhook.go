package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/handlers/render"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/models"
)

// Providers rarely send more than a few KB, anything bigger is garbage
const maxWebhookBody = 1 << 20

func handleWebhook(rec webhookReconciler, l logger.Logger) http.Handler {
	type response struct {
		Received bool   `json:"received"`
		EventID  string `json:"event_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		result, err := rec.Handle(r.Context(), provider, body, r.Header)

		switch {
		case err == nil:
			render.JSON(w, response{Received: true, EventID: result.EventID.String()})
		case errors.Is(err, apperrors.ErrUnknownProvider):
			render.ServiceError(w, "Unknown provider", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrInvalidSignature):
			render.ServiceError(w, "Invalid signature", http.StatusUnauthorized)
		default:
			l.Error("Failed to process webhook", "provider", provider, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAuditTrail(audit auditTrail, l logger.Logger) http.Handler {
	type historyEntry struct {
		Status    string    `json:"status"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}

	type response struct {
		ID                   string         `json:"id"`
		Provider             string         `json:"provider"`
		EventType            string         `json:"event_type"`
		RawPayload           string         `json:"raw_payload"`
		ProcessingStatus     string         `json:"processing_status"`
		ProcessingHistory    []historyEntry `json:"processing_history"`
		RelatedTransactionID *string        `json:"related_transaction_id,omitempty"`
		CreatedAt            time.Time      `json:"created_at"`
		UpdatedAt            time.Time      `json:"updated_at"`
	}

	toResponse := func(e models.WebhookEvent) response {
		history := make([]historyEntry, 0, len(e.ProcessingHistory))
		for _, entry := range e.ProcessingHistory {
			history = append(history, historyEntry{
				Status:    entry.Status,
				Message:   entry.Message,
				Timestamp: entry.Timestamp,
			})
		}

		resp := response{
			ID:                e.ID.String(),
			Provider:          e.Provider,
			EventType:         e.EventType,
			RawPayload:        string(e.RawPayload),
			ProcessingStatus:  e.ProcessingStatus,
			ProcessingHistory: history,
			CreatedAt:         e.CreatedAt,
			UpdatedAt:         e.UpdatedAt,
		}
		if e.RelatedTransactionID != nil {
			id := e.RelatedTransactionID.String()
			resp.RelatedTransactionID = &id
		}

		return resp
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid event id", http.StatusBadRequest)
			return
		}

		event, err := audit.Get(r.Context(), eventID)

		switch {
		case err == nil:
			render.JSON(w, toResponse(event))
		case errors.Is(err, apperrors.ErrEventNotFound):
			render.ServiceError(w, "Event not found", http.StatusNotFound)
		default:
			l.Error("Failed to get webhook event", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
