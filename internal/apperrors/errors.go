package apperrors

import (
	"errors"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrEventNotFound       = errors.New("webhook event not found")
	ErrUsageNotFound       = errors.New("credit usage not found")

	// Unique provider reference already present in the ledger.
	// Callers treat this as "already handled", not as a failure.
	ErrDuplicateReference = errors.New("provider reference already used")

	// Transaction already reached a terminal state; settle returns the
	// stored record as is
	ErrTransactionFinalized = errors.New("transaction already finalized")

	ErrBalanceInsufficient = errors.New("insufficient balance")
	ErrAmountNotPositive   = errors.New("amount must be positive")

	ErrUnknownProvider    = errors.New("unknown payment provider")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrUnparseablePayload = errors.New("webhook payload could not be parsed")

	ErrServiceTokenInvalid = errors.New("service token invalid")
)
