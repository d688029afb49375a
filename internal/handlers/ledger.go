package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/handlers/render"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/repository"
	"github.com/commitly/ledger/internal/service/ledger"
)

type transactionResponse struct {
	ID                string            `json:"id"`
	WalletID          string            `json:"wallet_id"`
	OwnerID           string            `json:"owner_id"`
	Direction         string            `json:"direction"`
	Status            string            `json:"status"`
	Symbol            string            `json:"symbol"`
	Category          string            `json:"category"`
	Channel           string            `json:"channel"`
	Amount            float64           `json:"amount"`
	Fee               float64           `json:"fee"`
	ProviderReference *string           `json:"provider_reference,omitempty"`
	UsageRef          *string           `json:"usage_ref,omitempty"`
	Metadata          map[string]string `json:"metadata"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toTransactionResponse(t models.Transaction) transactionResponse {
	amount, _ := t.Amount.Float64()
	fee, _ := t.Fee.Float64()

	resp := transactionResponse{
		ID:                t.ID.String(),
		WalletID:          t.WalletID.String(),
		OwnerID:           t.OwnerID.String(),
		Direction:         t.Direction,
		Status:            t.Status,
		Symbol:            t.Symbol,
		Category:          t.Category,
		Channel:           t.Channel,
		Amount:            amount,
		Fee:               fee,
		ProviderReference: t.ProviderReference,
		Metadata:          t.Metadata,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if t.UsageRef != nil {
		ref := t.UsageRef.String()
		resp.UsageRef = &ref
	}

	return resp
}

func handleBalance(ls ledgerService, l logger.Logger) http.Handler {
	type response struct {
		OwnerID string  `json:"owner_id"`
		Symbol  string  `json:"symbol"`
		Balance float64 `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
		if err != nil {
			render.ServiceError(w, "Invalid owner_id", http.StatusBadRequest)
			return
		}

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			symbol = models.SymbolCredits
		}

		balance, err := ls.GetBalance(r.Context(), ownerID, symbol)
		if err != nil {
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		value, _ := balance.Float64()
		render.JSON(w, response{OwnerID: ownerID.String(), Symbol: symbol, Balance: value})
	})
}

func handleDebit(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		OwnerID  uuid.UUID         `json:"owner_id" validate:"required"`
		Symbol   string            `json:"symbol" validate:"required"`
		Amount   decimal.Decimal   `json:"amount" validate:"required"`
		Reason   string            `json:"reason" validate:"required"`
		Metadata map[string]string `json:"metadata"`
	}

	type response struct {
		Transaction transactionResponse `json:"transaction"`
		UsageID     string              `json:"usage_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		transaction, usage, err := ls.Debit(r.Context(), ledger.DebitParams{
			OwnerID:  req.OwnerID,
			Symbol:   req.Symbol,
			Amount:   req.Amount,
			Reason:   req.Reason,
			Metadata: req.Metadata,
		})

		switch {
		case err == nil:
			render.JSON(w, response{Transaction: toTransactionResponse(transaction), UsageID: usage.ID.String()})
		case errors.Is(err, apperrors.ErrBalanceInsufficient):
			render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrAmountNotPositive):
			render.ServiceError(w, "Amount must be positive", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to debit", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func creditHandler(l logger.Logger, create func(r *http.Request, p ledger.CreditParams) (models.Transaction, error)) http.Handler {
	type request struct {
		OwnerID   uuid.UUID         `json:"owner_id" validate:"required"`
		Symbol    string            `json:"symbol" validate:"required"`
		Amount    decimal.Decimal   `json:"amount" validate:"required"`
		Reference string            `json:"reference" validate:"required"`
		Metadata  map[string]string `json:"metadata"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		transaction, err := create(r, ledger.CreditParams{
			OwnerID:   req.OwnerID,
			Symbol:    req.Symbol,
			Amount:    req.Amount,
			Reference: req.Reference,
			Metadata:  req.Metadata,
		})

		switch {
		case err == nil:
			render.JSON(w, toTransactionResponse(transaction))
		case errors.Is(err, apperrors.ErrAmountNotPositive):
			render.ServiceError(w, "Amount must be positive", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to create credit", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handlePendingCredit(ls ledgerService, l logger.Logger) http.Handler {
	return creditHandler(l, func(r *http.Request, p ledger.CreditParams) (models.Transaction, error) {
		return ls.CreatePendingCredit(r.Context(), p)
	})
}

func handleCredit(ls ledgerService, l logger.Logger) http.Handler {
	return creditHandler(l, func(r *http.Request, p ledger.CreditParams) (models.Transaction, error) {
		return ls.Credit(r.Context(), p)
	})
}

func handleReverse(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		TransactionID uuid.UUID `json:"transaction_id" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		transaction, err := ls.Reverse(r.Context(), req.TransactionID)

		switch {
		case err == nil:
			render.JSON(w, toTransactionResponse(transaction))
		case errors.Is(err, apperrors.ErrTransactionNotFound):
			render.ServiceError(w, "Transaction not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrTransactionFinalized):
			render.ServiceError(w, "Transaction is not reversible", http.StatusConflict)
		default:
			l.Error("Failed to reverse transaction", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleHistory(ls ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Transactions []transactionResponse `json:"transactions"`
		Total        int                   `json:"total"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		ownerID, err := uuid.Parse(query.Get("owner_id"))
		if err != nil {
			render.ServiceError(w, "Invalid owner_id", http.StatusBadRequest)
			return
		}

		page, _ := strconv.Atoi(query.Get("page"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(query.Get("page_size"))
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		direction := query.Get("direction")
		if direction != "" && direction != models.DirectionCredit && direction != models.DirectionDebit {
			render.ServiceError(w, "Invalid direction", http.StatusBadRequest)
			return
		}

		transactions, total, err := ls.History(r.Context(), ownerID, repository.ListTransactionsOpts{
			Direction: direction,
			Category:  query.Get("category"),
			Limit:     pageSize,
			Offset:    (page - 1) * pageSize,
		})
		if err != nil {
			l.Error("Failed to list history", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		items := make([]transactionResponse, 0, len(transactions))
		for _, t := range transactions {
			items = append(items, toTransactionResponse(t))
		}

		render.JSON(w, response{Transactions: items, Total: total})
	})
}
