package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/models"
)

type UsageRepo struct {
	DB DBTX
}

const usageCols = `id, owner_id, reason_type, credits_used, metadata, transaction_ref, created_at`

const createUsage = `-- name: CreateUsage
INSERT INTO credit_usages (` + usageCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + usageCols + `
`

func (r *UsageRepo) Create(ctx context.Context, u models.CreditUsage) (models.CreditUsage, error) {
	if u.Metadata == nil {
		u.Metadata = map[string]string{}
	}

	rows, _ := r.DB.Query(ctx, createUsage,
		u.ID, u.OwnerID, u.ReasonType, u.CreditsUsed, u.Metadata, u.TransactionRef, u.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToUsage)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getUsageByTransaction = `-- name: GetUsageByTransaction
SELECT ` + usageCols + ` FROM credit_usages
WHERE transaction_ref = $1
`

func (r *UsageRepo) GetByTransaction(ctx context.Context, transactionID uuid.UUID) (models.CreditUsage, error) {
	rows, _ := r.DB.Query(ctx, getUsageByTransaction, transactionID)
	u, err := pgx.CollectOneRow(rows, rowToUsage)

	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, pgx.ErrNoRows):
		return u, apperrors.ErrUsageNotFound
	default:
		return u, fmt.Errorf("db error: %w", err)
	}
}

func rowToUsage(row pgx.CollectableRow) (models.CreditUsage, error) {
	var u models.CreditUsage
	err := row.Scan(&u.ID, &u.OwnerID, &u.ReasonType, &u.CreditsUsed, &u.Metadata, &u.TransactionRef, &u.CreatedAt)
	return u, err
}
