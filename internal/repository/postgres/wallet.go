package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

// Insert wallet or return the existing one for the (owner, symbol) pair
// The UNION makes both branches return one row, so concurrent callers that
// lose the insert race still read the winner's row
const getOrCreateWallet = `-- name: GetOrCreateWallet
WITH new_wallet AS (
	INSERT INTO wallets (id, owner_id, symbol, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (owner_id, symbol) DO NOTHING
	RETURNING id, owner_id, symbol, created_at
)
SELECT id, owner_id, symbol, created_at FROM new_wallet
UNION
SELECT id, owner_id, symbol, created_at FROM wallets WHERE owner_id = $2 AND symbol = $3
`

func (r *WalletRepo) GetOrCreate(ctx context.Context, ownerID uuid.UUID, symbol string) (models.Wallet, error) {
	w, err := r.getOrCreate(ctx, ownerID, symbol)

	// Both branches can come back empty when a concurrent first insert commits
	// mid-statement: the conflicting row exists but predates the snapshot of
	// the SELECT. The row is committed by now, so one more read finds it.
	if errors.Is(err, pgx.ErrNoRows) {
		w, err = r.getOrCreate(ctx, ownerID, symbol)
	}

	if err != nil {
		return w, fmt.Errorf("db error: %w", err)
	}

	return w, nil
}

func (r *WalletRepo) getOrCreate(ctx context.Context, ownerID uuid.UUID, symbol string) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getOrCreateWallet, uuid.New(), ownerID, symbol, time.Now())
	return pgx.CollectOneRow(rows, rowToWallet)
}

const getWallet = `-- name: GetWallet
SELECT id, owner_id, symbol, created_at FROM wallets
WHERE owner_id = $1 AND symbol = $2
`

func (r *WalletRepo) Get(ctx context.Context, ownerID uuid.UUID, symbol string) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWallet, ownerID, symbol)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWalletNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

const lockWallet = `-- name: LockWallet
SELECT id FROM wallets
WHERE id = $1
FOR UPDATE
`

// Lock serializes writers on one wallet until the surrounding transaction
// ends. Debits take it so the sufficiency check and the insert act as one
// conditional operation.
func (r *WalletRepo) Lock(ctx context.Context, walletID uuid.UUID) error {
	var id uuid.UUID
	err := r.DB.QueryRow(ctx, lockWallet, walletID).Scan(&id)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrWalletNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Symbol, &w.CreatedAt)
	return w, err
}
