package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/models"
)

type WebhookEventRepo struct {
	DB DBTX
}

const eventCols = `id, provider, event_type, raw_payload, processing_status, processing_history, related_transaction_id, created_at, updated_at`

const createEvent = `-- name: CreateEvent
INSERT INTO webhook_events (` + eventCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + eventCols + `
`

func (r *WebhookEventRepo) Create(ctx context.Context, e models.WebhookEvent) (models.WebhookEvent, error) {
	if e.ProcessingHistory == nil {
		e.ProcessingHistory = []models.HistoryEntry{}
	}

	rows, _ := r.DB.Query(ctx, createEvent,
		e.ID, e.Provider, e.EventType, e.RawPayload, e.ProcessingStatus, e.ProcessingHistory,
		e.RelatedTransactionID, e.CreatedAt, e.UpdatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToEvent)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getEvent = `-- name: GetEvent
SELECT ` + eventCols + ` FROM webhook_events
WHERE id = $1
`

func (r *WebhookEventRepo) Get(ctx context.Context, id uuid.UUID) (models.WebhookEvent, error) {
	rows, _ := r.DB.Query(ctx, getEvent, id)
	e, err := pgx.CollectOneRow(rows, rowToEvent)

	switch {
	case err == nil:
		return e, nil
	case errors.Is(err, pgx.ErrNoRows):
		return e, apperrors.ErrEventNotFound
	default:
		return e, fmt.Errorf("db error: %w", err)
	}
}

// jsonb array || jsonb object appends the object, so entries stay ordered by
// the order of the updates
const appendHistory = `-- name: AppendHistory
UPDATE webhook_events
SET processing_history = processing_history || $2::jsonb,
    processing_status = $3,
    related_transaction_id = COALESCE($4, related_transaction_id),
    updated_at = now()
WHERE id = $1
`

func (r *WebhookEventRepo) AppendHistory(ctx context.Context, id uuid.UUID, entry models.HistoryEntry, status string, relatedTransactionID *uuid.UUID) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("can't encode history entry: %w", err)
	}

	tag, err := r.DB.Exec(ctx, appendHistory, id, encoded, status, relatedTransactionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEventNotFound
	}

	return nil
}

func rowToEvent(row pgx.CollectableRow) (models.WebhookEvent, error) {
	var e models.WebhookEvent
	err := row.Scan(
		&e.ID, &e.Provider, &e.EventType, &e.RawPayload, &e.ProcessingStatus, &e.ProcessingHistory,
		&e.RelatedTransactionID, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}
