package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

const (
	StatusPending    = "pending"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusReversed   = "reversed"
)

const (
	CategoryDeposit    = "deposit"
	CategoryUsage      = "usage"
	CategoryBonus      = "bonus"
	CategoryTransfer   = "transfer"
	CategoryWithdrawal = "withdrawal"
)

const (
	ChannelInternal = "internal"
	ChannelSystem   = "system"
)

// Transaction is the ledger's only source of truth.
// Once terminal (successful, failed, reversed) it never changes again, except
// for the single allowed successful -> reversed transition.
type Transaction struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	OwnerID   uuid.UUID
	Direction string
	Status    string
	Symbol    string
	Category  string
	Channel   string
	Amount    decimal.Decimal
	Fee       decimal.Decimal

	// ProviderReference is the idempotency key for externally sourced
	// transactions. Unique system-wide when present.
	ProviderReference *string

	// UsageRef links a usage-category debit to its CreditUsage record
	UsageRef *uuid.UUID

	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the transaction reached a final state.
// A successful transaction may still be reversed but never becomes pending
// or failed again.
func (t Transaction) Terminal() bool {
	return t.Status != StatusPending
}
