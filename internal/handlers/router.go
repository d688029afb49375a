package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commitly/ledger/internal/handlers/middleware"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/repository"
	"github.com/commitly/ledger/internal/service/ledger"
	"github.com/commitly/ledger/internal/service/webhook"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	ledgerService ledgerService,
	reconciler webhookReconciler,
	audit auditTrail,
	tokens tokenParser,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(tokens)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	// Webhooks authenticate with provider signatures, not service tokens
	api.Handle("POST /webhooks/{provider}", handleWebhook(reconciler, logger))
	api.Handle("GET /webhooks/events/{id}", withAuth(handleAuditTrail(audit, logger)))

	api.Handle("GET /ledger/balance", withAuth(handleBalance(ledgerService, logger)))
	api.Handle("GET /ledger/history", withAuth(handleHistory(ledgerService, logger)))
	api.Handle("POST /ledger/debit", withAuth(handleDebit(ledgerService, logger)))
	api.Handle("POST /ledger/credits/pending", withAuth(handlePendingCredit(ledgerService, logger)))
	api.Handle("POST /ledger/credits", withAuth(handleCredit(ledgerService, logger)))
	api.Handle("POST /ledger/reverse", withAuth(handleReverse(ledgerService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type ledgerService interface {
	GetBalance(ctx context.Context, ownerID uuid.UUID, symbol string) (decimal.Decimal, error)
	Debit(ctx context.Context, params ledger.DebitParams) (models.Transaction, models.CreditUsage, error)
	CreatePendingCredit(ctx context.Context, params ledger.CreditParams) (models.Transaction, error)
	Credit(ctx context.Context, params ledger.CreditParams) (models.Transaction, error)
	Reverse(ctx context.Context, transactionID uuid.UUID) (models.Transaction, error)
	History(ctx context.Context, ownerID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, int, error)
}

type webhookReconciler interface {
	// Handle processes one provider delivery end to end.
	// Has to return apperrors.ErrUnknownProvider for unconfigured providers
	// and apperrors.ErrInvalidSignature for failed verification.
	Handle(ctx context.Context, provider string, body []byte, headers http.Header) (webhook.Result, error)
}

type auditTrail interface {
	// Get the stored event with its processing history
	// Has to return apperrors.ErrEventNotFound if event not found
	Get(ctx context.Context, eventID uuid.UUID) (models.WebhookEvent, error)
}

type tokenParser interface {
	Parse(token string) (service string, err error)
}
