package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/service/ledger"
)

// Notification is the common shape every provider payload is reduced to
// before it reaches the reconciler
type Notification struct {
	EventType string
	Reference string
	Outcome   ledger.Outcome

	// Skip marks event types that must be acknowledged without touching the
	// ledger (refund initiated, transfer events, ...)
	Skip bool

	// Enrichment is merged into the settled transaction's metadata
	Enrichment map[string]string
}

// Provider knows one payment provider's authentication scheme and payload
// shape
type Provider interface {
	Name() string

	// Header carrying the signature or shared token for this provider
	SignatureHeader() string

	// Verify request authenticity over the raw body before anything is parsed
	// Must return apperrors.ErrInvalidSignature on mismatch
	Verify(body []byte, signature string) error

	Parse(body []byte) (Notification, error)
}

// Paystack signs every delivery with HMAC-SHA512 over the raw body, hex
// encoded in the x-paystack-signature header
type Paystack struct {
	SecretKey string
}

func (p *Paystack) Name() string            { return "paystack" }
func (p *Paystack) SignatureHeader() string { return "X-Paystack-Signature" }

func (p *Paystack) Verify(body []byte, signature string) error {
	mac := hmac.New(sha512.New, []byte(p.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.ErrInvalidSignature
	}

	return nil
}

func (p *Paystack) Parse(body []byte) (Notification, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Channel   string `json:"channel"`
			PaidAt    string `json:"paid_at"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", apperrors.ErrUnparseablePayload, err)
	}

	n := Notification{EventType: payload.Event}

	// Only a successful charge settles a deposit, everything else is
	// acknowledged and recorded without a ledger transition
	if payload.Event != "charge.success" {
		n.Skip = true
		return n, nil
	}

	if payload.Data.Reference == "" {
		return n, fmt.Errorf("%w: missing data.reference", apperrors.ErrUnparseablePayload)
	}

	n.Reference = payload.Data.Reference
	n.Outcome = ledger.OutcomeSuccess
	n.Enrichment = map[string]string{
		"provider": p.Name(),
		"channel":  payload.Data.Channel,
		"paid_at":  payload.Data.PaidAt,
	}

	return n, nil
}

// Flutterwave sends a shared verification token in the verif-hash header
// instead of signing the body
type Flutterwave struct {
	VerifHash string
}

func (f *Flutterwave) Name() string            { return "flutterwave" }
func (f *Flutterwave) SignatureHeader() string { return "verif-hash" }

func (f *Flutterwave) Verify(body []byte, signature string) error {
	if f.VerifHash == "" || subtle.ConstantTimeCompare([]byte(f.VerifHash), []byte(signature)) != 1 {
		return apperrors.ErrInvalidSignature
	}

	return nil
}

func (f *Flutterwave) Parse(body []byte) (Notification, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			TxRef       string `json:"tx_ref"`
			Status      string `json:"status"`
			PaymentType string `json:"payment_type"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", apperrors.ErrUnparseablePayload, err)
	}

	n := Notification{EventType: payload.Event}

	if payload.Event != "charge.completed" {
		n.Skip = true
		return n, nil
	}

	if payload.Data.TxRef == "" {
		return n, fmt.Errorf("%w: missing data.tx_ref", apperrors.ErrUnparseablePayload)
	}

	n.Reference = payload.Data.TxRef
	n.Outcome = ledger.OutcomeFailure
	if payload.Data.Status == "successful" {
		n.Outcome = ledger.OutcomeSuccess
	}
	n.Enrichment = map[string]string{
		"provider":     f.Name(),
		"payment_type": payload.Data.PaymentType,
		"status":       payload.Data.Status,
	}

	return n, nil
}
