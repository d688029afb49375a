package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/repository"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionCols = `id, wallet_id, owner_id, direction, status, symbol, category, channel, amount, fee, provider_reference, usage_ref, metadata, created_at, updated_at`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (` + transactionCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + transactionCols + `
`

func (r *TransactionRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.WalletID, t.OwnerID, t.Direction, t.Status, t.Symbol, t.Category, t.Channel,
		t.Amount, t.Fee, t.ProviderReference, t.UsageRef, t.Metadata, t.CreatedAt, t.UpdatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrDuplicateReference
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getTransactionByID = `-- name: GetTransactionByID
SELECT ` + transactionCols + ` FROM transactions
WHERE id = $1
`

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByID, id)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const getTransactionByReference = `-- name: GetTransactionByReference
SELECT ` + transactionCols + ` FROM transactions
WHERE provider_reference = $1
`

func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByReference, reference)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

// Compare-and-transition: the status moves only if the row is still pending.
// Concurrent callers race on this single conditional update; exactly one wins
const transitionPending = `-- name: TransitionPending
UPDATE transactions
SET status = $2, metadata = metadata || $3::jsonb, updated_at = now()
WHERE provider_reference = $1 AND status = 'pending'
RETURNING ` + transactionCols + `
`

func (r *TransactionRepo) TransitionPending(ctx context.Context, reference string, toStatus string, enrichment map[string]string) (models.Transaction, error) {
	if enrichment == nil {
		enrichment = map[string]string{}
	}
	merged, err := json.Marshal(enrichment)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("can't encode enrichment: %w", err)
	}

	rows, _ := r.DB.Query(ctx, transitionPending, reference, toStatus, merged)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race or the transaction was settled earlier: report which
		existing, getErr := r.GetByReference(ctx, reference)
		if getErr != nil {
			return existing, getErr
		}
		return existing, apperrors.ErrTransactionFinalized
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const markReversed = `-- name: MarkReversed
UPDATE transactions
SET status = 'reversed', updated_at = now()
WHERE id = $1 AND status = 'successful'
RETURNING ` + transactionCols + `
`

func (r *TransactionRepo) MarkReversed(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, markReversed, id)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return existing, getErr
		}
		return existing, apperrors.ErrTransactionFinalized
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const setUsageRef = `-- name: SetUsageRef
UPDATE transactions
SET usage_ref = $2, updated_at = now()
WHERE id = $1
`

func (r *TransactionRepo) SetUsageRef(ctx context.Context, id uuid.UUID, usageID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, setUsageRef, id, usageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTransactionNotFound
	}

	return nil
}

// Balance is never stored: it is the signed sum over successful transactions.
// One statement, so it can't observe a half written debit pair
const sumSuccessful = `-- name: SumSuccessful
SELECT COALESCE(SUM(CASE direction WHEN 'credit' THEN amount ELSE -amount END), 0)
FROM transactions
WHERE wallet_id = $1 AND status = 'successful'
`

func (r *TransactionRepo) SumSuccessful(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumSuccessful, walletID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}

	return sum, nil
}

const countTransactions = `-- name: CountTransactions
SELECT COUNT(*) FROM transactions
WHERE owner_id = $1
  AND ($2 = '' OR direction = $2)
  AND ($3 = '' OR category = $3)
`

const listTransactions = `-- name: ListTransactions
SELECT ` + transactionCols + ` FROM transactions
WHERE owner_id = $1
  AND ($2 = '' OR direction = $2)
  AND ($3 = '' OR category = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

func (r *TransactionRepo) List(ctx context.Context, ownerID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	var total int
	err := r.DB.QueryRow(ctx, countTransactions, ownerID, opts.Direction, opts.Category).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, listTransactions, ownerID, opts.Direction, opts.Category, opts.Limit, opts.Offset)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return transactions, total, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.OwnerID, &t.Direction, &t.Status, &t.Symbol, &t.Category, &t.Channel,
		&t.Amount, &t.Fee, &t.ProviderReference, &t.UsageRef, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
