package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventReceived   = "received"
	EventProcessing = "processing"
	EventProcessed  = "processed"
	EventFailed     = "failed"
)

// History entry outcomes
const (
	HistorySuccess = "success"
	HistorySkip    = "skip"
	HistoryFail    = "fail"
)

type HistoryEntry struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookEvent records one inbound provider notification, duplicates
// included. It is an audit artifact: it never drives ledger state, it only
// describes what the reconciler decided to do with the delivery.
type WebhookEvent struct {
	ID                   uuid.UUID
	Provider             string
	EventType            string
	RawPayload           []byte
	ProcessingStatus     string
	ProcessingHistory    []HistoryEntry
	RelatedTransactionID *uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
