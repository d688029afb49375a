package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported units of account
const (
	SymbolCredits = "CREDITS"
)

// Wallet is an owner's balance bucket for one unit of account.
// Created lazily on the first transaction for the (owner, symbol) pair and
// never mutated afterwards: the balance is derived from transactions only.
type Wallet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Symbol    string
	CreatedAt time.Time
}
