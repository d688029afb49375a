package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Well known debit reasons
const (
	ReasonCommitGeneration = "commit_generation"
)

// CreditUsage explains why a usage debit happened.
// Every usage-category transaction has exactly one CreditUsage and vice
// versa; they are written in the same storage transaction.
type CreditUsage struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	ReasonType     string
	CreditsUsed    decimal.Decimal
	Metadata       map[string]string
	TransactionRef uuid.UUID
	CreatedAt      time.Time
}
