package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commitly/ledger/internal/models"
)

// Wallet repository interface
type WalletRepo interface {
	// Get wallet or create it if the (owner, symbol) pair is seen first time.
	// Concurrency safe: two concurrent calls return the same wallet
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, symbol string) (models.Wallet, error)

	// Get wallet by owner and symbol
	// If wallet not found must return apperrors.ErrWalletNotFound
	Get(ctx context.Context, ownerID uuid.UUID, symbol string) (models.Wallet, error)

	// Lock takes a row lock on the wallet until the surrounding transaction
	// ends. Meaningful only inside InTx; used to serialize debits per wallet
	Lock(ctx context.Context, walletID uuid.UUID) error
}

// Options to filter and paginate transaction listing
type ListTransactionsOpts struct {
	Direction string // optional, 'credit' or 'debit'
	Category  string // optional
	Limit     int
	Offset    int
}

// Transaction repository interface
type TransactionRepo interface {
	// Create transaction as provided
	// Must return apperrors.ErrDuplicateReference if the provider reference
	// is already present in the ledger
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)

	GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// Get transaction by its provider reference
	// If not found must return apperrors.ErrTransactionNotFound
	GetByReference(ctx context.Context, reference string) (models.Transaction, error)

	// TransitionPending atomically moves the transaction identified by the
	// provider reference from 'pending' to the given terminal status, merging
	// enrichment into its metadata. Implemented as one conditional write.
	// If the transaction exists but is already terminal it must return the
	// stored record together with apperrors.ErrTransactionFinalized.
	// If no transaction carries the reference: apperrors.ErrTransactionNotFound
	TransitionPending(ctx context.Context, reference string, toStatus string, enrichment map[string]string) (models.Transaction, error)

	// MarkReversed flips a successful transaction to reversed.
	// Returns apperrors.ErrTransactionFinalized if it is in any other state
	MarkReversed(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// SetUsageRef links the transaction to its credit usage record
	SetUsageRef(ctx context.Context, id uuid.UUID, usageID uuid.UUID) error

	// SumSuccessful computes the wallet balance: signed sum of amounts over
	// successful transactions only, credits positive and debits negative.
	// Single statement, so the read is a consistent snapshot
	SumSuccessful(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)

	// List owner transactions ordered by created_at DESC with total count
	List(ctx context.Context, ownerID uuid.UUID, opts ListTransactionsOpts) ([]models.Transaction, int, error)
}

// CreditUsage repository interface
type UsageRepo interface {
	Create(ctx context.Context, u models.CreditUsage) (models.CreditUsage, error)

	// Get usage by the transaction it belongs to
	// If not found must return apperrors.ErrUsageNotFound
	GetByTransaction(ctx context.Context, transactionID uuid.UUID) (models.CreditUsage, error)
}

// WebhookEvent repository interface
type WebhookEventRepo interface {
	Create(ctx context.Context, e models.WebhookEvent) (models.WebhookEvent, error)

	// Get event by id
	// If not found must return apperrors.ErrEventNotFound
	Get(ctx context.Context, id uuid.UUID) (models.WebhookEvent, error)

	// AppendHistory appends one history entry, sets the processing status and
	// optionally links the related transaction. Appends for the same event
	// must be applied in call order.
	// If event not found must return apperrors.ErrEventNotFound
	AppendHistory(ctx context.Context, id uuid.UUID, entry models.HistoryEntry, status string, relatedTransactionID *uuid.UUID) error
}

// Storage aggregates all repositories over one connection or transaction
type Storage interface {
	Wallet() WalletRepo
	Transaction() TransactionRepo
	Usage() UsageRepo
	WebhookEvent() WebhookEventRepo

	// InTx runs fn inside a database transaction: everything fn writes is
	// committed atomically or not at all
	InTx(ctx context.Context, fn func(Storage) error) error
}
