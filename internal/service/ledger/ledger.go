package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/repository"
)

// Every store call gets a bounded deadline so no ledger operation can block
// forever. Timed out settles stay safe to retry: the transition is a single
// conditional write.
const defaultStoreTimeout = 5 * time.Second

// Settlement outcome reported by a payment provider
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type DebitParams struct {
	OwnerID  uuid.UUID
	Symbol   string
	Amount   decimal.Decimal
	Reason   string
	Metadata map[string]string
}

type CreditParams struct {
	OwnerID   uuid.UUID
	Symbol    string
	Amount    decimal.Decimal
	Reference string
	Metadata  map[string]string
}

// Service owns every create and transition of Transaction records and derives
// balances from them. Nothing else writes to the ledger tables.
type Service struct {
	storage repository.Storage
	logger  logger.Logger
	timeout time.Duration
}

func NewService(storage repository.Storage, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage: storage,
		logger:  l,
		timeout: defaultStoreTimeout,
	}
}

// GetBalance sums successful transactions for the wallet: credits positive,
// debits negative. Reversed, failed and pending entries don't count.
// A wallet that was never written to has balance zero.
func (s *Service) GetBalance(ctx context.Context, ownerID uuid.UUID, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wallet, err := s.storage.Wallet().Get(ctx, ownerID, symbol)
	switch {
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return decimal.Zero, nil
	case err != nil:
		return decimal.Zero, fmt.Errorf("can't get wallet. Err: %w", err)
	}

	balance, err := s.storage.Transaction().SumSuccessful(ctx, wallet.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("can't compute balance. Err: %w", err)
	}

	return balance, nil
}

// HasBalance is a convenience read, not a reservation: a debit racing it may
// still win the funds. Debit itself re-checks under the wallet lock.
func (s *Service) HasBalance(ctx context.Context, ownerID uuid.UUID, symbol string, required decimal.Decimal) (bool, error) {
	balance, err := s.GetBalance(ctx, ownerID, symbol)
	if err != nil {
		return false, err
	}

	return balance.GreaterThanOrEqual(required), nil
}

// Debit spends credits: one successful usage-category debit transaction plus
// its CreditUsage record, written atomically. The sufficiency check runs
// under a wallet row lock, so concurrent debits serialize and the balance
// can't go below zero.
func (s *Service) Debit(ctx context.Context, p DebitParams) (models.Transaction, models.CreditUsage, error) {
	var transaction models.Transaction
	var usage models.CreditUsage

	if !p.Amount.IsPositive() {
		return transaction, usage, apperrors.ErrAmountNotPositive
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		wallet, err := storage.Wallet().GetOrCreate(ctx, p.OwnerID, p.Symbol)
		if err != nil {
			return fmt.Errorf("can't get wallet. Err: %w", err)
		}

		// Serialize debits on this wallet for the rest of the transaction
		if err := storage.Wallet().Lock(ctx, wallet.ID); err != nil {
			return fmt.Errorf("can't lock wallet. Err: %w", err)
		}

		balance, err := storage.Transaction().SumSuccessful(ctx, wallet.ID)
		if err != nil {
			return fmt.Errorf("can't compute balance. Err: %w", err)
		}
		if balance.LessThan(p.Amount) {
			return apperrors.ErrBalanceInsufficient
		}

		now := time.Now()
		transaction, err = storage.Transaction().Create(ctx, models.Transaction{
			ID:        uuid.New(),
			WalletID:  wallet.ID,
			OwnerID:   p.OwnerID,
			Direction: models.DirectionDebit,
			Status:    models.StatusSuccessful,
			Symbol:    p.Symbol,
			Category:  models.CategoryUsage,
			Channel:   models.ChannelInternal,
			Amount:    p.Amount,
			Fee:       decimal.Zero,
			Metadata:  p.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("can't create debit transaction. Err: %w", err)
		}

		usage, err = storage.Usage().Create(ctx, models.CreditUsage{
			ID:             uuid.New(),
			OwnerID:        p.OwnerID,
			ReasonType:     p.Reason,
			CreditsUsed:    p.Amount,
			Metadata:       p.Metadata,
			TransactionRef: transaction.ID,
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("can't create credit usage. Err: %w", err)
		}

		if err := storage.Transaction().SetUsageRef(ctx, transaction.ID, usage.ID); err != nil {
			return fmt.Errorf("can't link usage to transaction. Err: %w", err)
		}
		transaction.UsageRef = &usage.ID

		return nil
	})
	if err != nil {
		return models.Transaction{}, models.CreditUsage{}, err
	}

	return transaction, usage, nil
}

// CreatePendingCredit opens a deposit awaiting provider confirmation.
// The reference is the idempotency anchor: a repeated call with the same
// reference returns the earlier transaction instead of a second one.
func (s *Service) CreatePendingCredit(ctx context.Context, p CreditParams) (models.Transaction, error) {
	return s.createCredit(ctx, p, models.StatusPending, models.CategoryDeposit)
}

// Credit grants credits that are born successful (signup bonus, migrated
// legacy balance). Still requires a unique reference, so replaying the grant
// is a no-op.
func (s *Service) Credit(ctx context.Context, p CreditParams) (models.Transaction, error) {
	return s.createCredit(ctx, p, models.StatusSuccessful, models.CategoryBonus)
}

func (s *Service) createCredit(ctx context.Context, p CreditParams, status string, category string) (models.Transaction, error) {
	var transaction models.Transaction

	if !p.Amount.IsPositive() {
		return transaction, apperrors.ErrAmountNotPositive
	}
	if p.Reference == "" {
		return transaction, fmt.Errorf("provider reference required for credits")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wallet, err := s.storage.Wallet().GetOrCreate(ctx, p.OwnerID, p.Symbol)
	if err != nil {
		return transaction, fmt.Errorf("can't get wallet. Err: %w", err)
	}

	now := time.Now()
	transaction, err = s.storage.Transaction().Create(ctx, models.Transaction{
		ID:                uuid.New(),
		WalletID:          wallet.ID,
		OwnerID:           p.OwnerID,
		Direction:         models.DirectionCredit,
		Status:            status,
		Symbol:            p.Symbol,
		Category:          category,
		Channel:           models.ChannelSystem,
		Amount:            p.Amount,
		Fee:               decimal.Zero,
		ProviderReference: &p.Reference,
		Metadata:          p.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	})

	switch {
	case err == nil:
		return transaction, nil
	case errors.Is(err, apperrors.ErrDuplicateReference):
		// The store is the idempotency guard: the reference is taken, so the
		// credit was already recorded. Return it as is.
		existing, getErr := s.storage.Transaction().GetByReference(ctx, p.Reference)
		if getErr != nil {
			return existing, fmt.Errorf("reference taken but can't load transaction. Err: %w", getErr)
		}
		s.logger.Info("credit replayed, returning existing transaction", "reference", p.Reference)
		return existing, nil
	default:
		return transaction, fmt.Errorf("can't create credit transaction. Err: %w", err)
	}
}

// Settle moves the pending transaction behind the reference to successful or
// failed. Exactly-once: when two deliveries race, one performs the compare-
// and-transition and the other gets the already terminal record back with
// transitioned=false.
// Returns apperrors.ErrTransactionNotFound if no transaction carries the
// reference.
func (s *Service) Settle(ctx context.Context, reference string, outcome Outcome, enrichment map[string]string) (transaction models.Transaction, transitioned bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	toStatus := models.StatusFailed
	if outcome == OutcomeSuccess {
		toStatus = models.StatusSuccessful
	}

	transaction, err = s.storage.Transaction().TransitionPending(ctx, reference, toStatus, enrichment)

	switch {
	case err == nil:
		s.logger.Info("transaction settled", "reference", reference, "status", toStatus)
		return transaction, true, nil
	case errors.Is(err, apperrors.ErrTransactionFinalized):
		s.logger.Info("settle replayed on terminal transaction", "reference", reference, "status", transaction.Status)
		return transaction, false, nil
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		return transaction, false, err
	default:
		return transaction, false, fmt.Errorf("can't settle transaction. Err: %w", err)
	}
}

// Reverse unwinds a successful transaction, e.g. after a charge-back.
// The entry flips to reversed and simply stops counting towards the balance;
// no offsetting entry is written.
func (s *Service) Reverse(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	transaction, err := s.storage.Transaction().MarkReversed(ctx, id)
	if err != nil {
		return transaction, err
	}

	s.logger.Info("transaction reversed", "transaction_id", id)
	return transaction, nil
}

// History lists the owner's transactions newest first with the total count
func (s *Service) History(ctx context.Context, ownerID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.storage.Transaction().List(ctx, ownerID, opts)
}
