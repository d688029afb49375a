package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/service/ledger"
)

// What the reconciler decided about one delivery
const (
	ActionSettled          = "settled"
	ActionAlreadyProcessed = "already_processed"
	ActionSkipped          = "skipped"
	ActionUnknownReference = "unknown_reference"
	ActionFailed           = "failed"
)

type Result struct {
	EventID       uuid.UUID
	Action        string
	TransactionID *uuid.UUID
}

type settler interface {
	Settle(ctx context.Context, reference string, outcome ledger.Outcome, enrichment map[string]string) (models.Transaction, bool, error)
}

// Audit writes are fire-and-forget: the recorder queues them off the request
// path and the reconciler never waits on them
type auditLog interface {
	RecordReceipt(e models.WebhookEvent)
	Append(eventID uuid.UUID, status string, message string, relatedTransactionID *uuid.UUID)
}

// Reconciler turns an untrusted, possibly duplicated provider notification
// into at most one ledger state transition
type Reconciler struct {
	providers map[string]Provider
	ledger    settler
	audit     auditLog
	logger    logger.Logger
}

func NewReconciler(l settler, audit auditLog, log logger.Logger, providers ...Provider) *Reconciler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	return &Reconciler{
		providers: byName,
		ledger:    l,
		audit:     audit,
		logger:    log,
	}
}

// SignatureHeader returns the header the named provider signs with
func (r *Reconciler) SignatureHeader(provider string) (string, error) {
	p, ok := r.providers[provider]
	if !ok {
		return "", apperrors.ErrUnknownProvider
	}

	return p.SignatureHeader(), nil
}

// Handle processes one delivery:
// verify authenticity, record receipt, map the payload to a settlement
// outcome and apply it through the idempotent settle.
// apperrors.ErrInvalidSignature and apperrors.ErrUnknownProvider mean the
// delivery was rejected before touching anything. Any other error is
// retryable by redelivery.
func (r *Reconciler) Handle(ctx context.Context, providerName string, body []byte, headers http.Header) (Result, error) {
	p, ok := r.providers[providerName]
	if !ok {
		return Result{}, apperrors.ErrUnknownProvider
	}

	if err := p.Verify(body, headers.Get(p.SignatureHeader())); err != nil {
		r.logger.Warn("webhook rejected", "provider", providerName, "error", err)
		return Result{}, apperrors.ErrInvalidSignature
	}

	notification, parseErr := p.Parse(body)

	// Every authenticated delivery is recorded, duplicates included, so
	// replays stay forensically visible
	now := time.Now()
	result := Result{EventID: uuid.New()}
	r.audit.RecordReceipt(models.WebhookEvent{
		ID:               result.EventID,
		Provider:         p.Name(),
		EventType:        notification.EventType,
		RawPayload:       body,
		ProcessingStatus: models.EventReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	})

	if parseErr != nil {
		r.audit.Append(result.EventID, models.HistoryFail, "payload could not be parsed", nil)
		r.logger.Error("webhook payload unparseable", "provider", providerName, "error", parseErr)
		result.Action = ActionFailed
		return result, nil
	}

	if notification.Skip {
		r.audit.Append(result.EventID, models.HistorySkip, fmt.Sprintf("event type %q ignored", notification.EventType), nil)
		result.Action = ActionSkipped
		return result, nil
	}

	transaction, transitioned, err := r.ledger.Settle(ctx, notification.Reference, notification.Outcome, notification.Enrichment)

	switch {
	case err == nil && transitioned:
		r.audit.Append(result.EventID, models.HistorySuccess, fmt.Sprintf("settled as %s", transaction.Status), &transaction.ID)
		result.Action = ActionSettled
		result.TransactionID = &transaction.ID
		return result, nil

	case err == nil:
		r.audit.Append(result.EventID, models.HistorySkip, "already processed", &transaction.ID)
		result.Action = ActionAlreadyProcessed
		result.TransactionID = &transaction.ID
		return result, nil

	case errors.Is(err, apperrors.ErrTransactionNotFound):
		// Retrying won't help: nothing in the ledger carries the reference.
		// Acknowledge the delivery and keep the audit trail.
		r.audit.Append(result.EventID, models.HistoryFail, fmt.Sprintf("no transaction for reference %q", notification.Reference), nil)
		r.logger.Warn("webhook for unknown reference", "provider", providerName, "reference", notification.Reference)
		result.Action = ActionUnknownReference
		return result, nil

	default:
		// Transient store failure: report it so the provider redelivers.
		// Settle is idempotent, so the retry is safe.
		r.audit.Append(result.EventID, models.HistoryFail, err.Error(), nil)
		return result, fmt.Errorf("can't settle webhook. Err: %w", err)
	}
}
