package webhooks

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/service/ledger"
	"github.com/commitly/ledger/internal/testutil"
	"github.com/commitly/ledger/tests/e2e"
)

func sign(body string) string {
	mac := hmac.New(sha512.New, []byte(e2e.PaystackSecretKey))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, srvURL string, body string, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srvURL+"/api/webhooks/paystack", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Paystack-Signature", signature)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) // nolint:errcheck
	return resp
}

func TestWebhookSettlement(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("charge.success settles a pending deposit", func(t *testing.T) {
		e2e.Serve(pg.Pool, t, func(srvURL string, services e2e.Services) {
			ownerID := uuid.New()
			reference := "e2e-settle-" + ownerID.String()

			_, err := services.Ledger.CreatePendingCredit(t.Context(), ledger.CreditParams{
				OwnerID:   ownerID,
				Symbol:    models.SymbolCredits,
				Amount:    decimal.NewFromInt(100),
				Reference: reference,
			})
			require.NoError(t, err)

			body := fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"channel":"card"}}`, reference)

			resp := deliver(t, srvURL, body, sign(body))
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var ack struct {
				Received bool   `json:"received"`
				EventID  string `json:"event_id"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
			require.True(t, ack.Received)

			balance, err := services.Ledger.GetBalance(t.Context(), ownerID, models.SymbolCredits)
			require.NoError(t, err)
			require.True(t, balance.Equal(decimal.NewFromInt(100)), "settled deposit must count, got %s", balance)

			t.Run("replayed delivery doesn't double credit", func(t *testing.T) {
				resp := deliver(t, srvURL, body, sign(body))
				require.Equal(t, http.StatusOK, resp.StatusCode, "duplicates must be acknowledged")

				balance, err := services.Ledger.GetBalance(t.Context(), ownerID, models.SymbolCredits)
				require.NoError(t, err)
				require.True(t, balance.Equal(decimal.NewFromInt(100)), "balance must not change on replay, got %s", balance)
			})

			t.Run("audit trail is queryable", func(t *testing.T) {
				eventID, err := uuid.Parse(ack.EventID)
				require.NoError(t, err)

				require.Eventually(t, func() bool {
					event, err := services.Recorder.Get(t.Context(), eventID)
					return err == nil && len(event.ProcessingHistory) == 1
				}, 5*time.Second, 50*time.Millisecond, "audit writes are async but must land")

				event, err := services.Recorder.Get(t.Context(), eventID)
				require.NoError(t, err)
				require.Equal(t, "paystack", event.Provider)
				require.Equal(t, []byte(body), event.RawPayload)
				require.Equal(t, models.HistorySuccess, event.ProcessingHistory[0].Status)
				require.NotNil(t, event.RelatedTransactionID)
			})
		})
	})

	t.Run("concurrent deliveries for distinct references both settle", func(t *testing.T) {
		e2e.Serve(pg.Pool, t, func(srvURL string, services e2e.Services) {
			ownerID := uuid.New()
			references := []string{
				"e2e-pair-a-" + ownerID.String(),
				"e2e-pair-b-" + ownerID.String(),
			}
			amounts := []int64{30, 70}

			for i, reference := range references {
				_, err := services.Ledger.CreatePendingCredit(t.Context(), ledger.CreditParams{
					OwnerID:   ownerID,
					Symbol:    models.SymbolCredits,
					Amount:    decimal.NewFromInt(amounts[i]),
					Reference: reference,
				})
				require.NoError(t, err)
			}

			eventIDs := make([]string, len(references))
			errs := make([]error, len(references))

			var wg sync.WaitGroup
			for i, reference := range references {
				wg.Add(1)
				go func() {
					defer wg.Done()

					body := fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"channel":"card"}}`, reference)
					req, err := http.NewRequest(http.MethodPost, srvURL+"/api/webhooks/paystack", strings.NewReader(body))
					if err != nil {
						errs[i] = err
						return
					}
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("X-Paystack-Signature", sign(body))

					resp, err := http.DefaultClient.Do(req)
					if err != nil {
						errs[i] = err
						return
					}
					defer resp.Body.Close() // nolint:errcheck

					if resp.StatusCode != http.StatusOK {
						errs[i] = fmt.Errorf("unexpected status %d", resp.StatusCode)
						return
					}

					var ack struct {
						EventID string `json:"event_id"`
					}
					errs[i] = json.NewDecoder(resp.Body).Decode(&ack)
					eventIDs[i] = ack.EventID
				}()
			}
			wg.Wait()

			for i := range references {
				require.NoError(t, errs[i], "delivery %d must be acknowledged", i)
			}

			balance, err := services.Ledger.GetBalance(t.Context(), ownerID, models.SymbolCredits)
			require.NoError(t, err)
			require.True(t, balance.Equal(decimal.NewFromInt(100)), "both deposits must settle, got %s", balance)

			// Each event must link its own transaction
			linked := make([]uuid.UUID, len(references))
			for i, raw := range eventIDs {
				eventID, err := uuid.Parse(raw)
				require.NoError(t, err)

				require.Eventually(t, func() bool {
					event, err := services.Recorder.Get(t.Context(), eventID)
					return err == nil && event.RelatedTransactionID != nil
				}, 5*time.Second, 50*time.Millisecond, "event %d must link its transaction", i)

				event, err := services.Recorder.Get(t.Context(), eventID)
				require.NoError(t, err)
				require.Equal(t, models.HistorySuccess, event.ProcessingHistory[0].Status)
				linked[i] = *event.RelatedTransactionID
			}

			require.NotEqual(t, linked[0], linked[1], "distinct references must settle distinct transactions")
		})
	})

	t.Run("bad signature is rejected before anything is stored", func(t *testing.T) {
		e2e.Serve(pg.Pool, t, func(srvURL string, services e2e.Services) {
			body := `{"event":"charge.success","data":{"reference":"whatever"}}`

			resp := deliver(t, srvURL, body, "not-a-signature")

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})

	t.Run("unknown reference is acknowledged and audited", func(t *testing.T) {
		e2e.Serve(pg.Pool, t, func(srvURL string, services e2e.Services) {
			body := `{"event":"charge.success","data":{"reference":"e2e-nobody-knows"}}`

			resp := deliver(t, srvURL, body, sign(body))
			require.Equal(t, http.StatusOK, resp.StatusCode, "redelivery can't help, so acknowledge")

			var ack struct {
				EventID string `json:"event_id"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
			eventID, err := uuid.Parse(ack.EventID)
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				event, err := services.Recorder.Get(t.Context(), eventID)
				return err == nil && event.ProcessingStatus == models.EventFailed
			}, 5*time.Second, 50*time.Millisecond, "failure must be visible in the audit trail")
		})
	})

	t.Run("unrelated event type is acknowledged without settling", func(t *testing.T) {
		e2e.Serve(pg.Pool, t, func(srvURL string, services e2e.Services) {
			ownerID := uuid.New()
			reference := "e2e-skip-" + ownerID.String()

			_, err := services.Ledger.CreatePendingCredit(t.Context(), ledger.CreditParams{
				OwnerID:   ownerID,
				Symbol:    models.SymbolCredits,
				Amount:    decimal.NewFromInt(10),
				Reference: reference,
			})
			require.NoError(t, err)

			body := fmt.Sprintf(`{"event":"refund.processed","data":{"reference":%q}}`, reference)

			resp := deliver(t, srvURL, body, sign(body))
			require.Equal(t, http.StatusOK, resp.StatusCode)

			balance, err := services.Ledger.GetBalance(t.Context(), ownerID, models.SymbolCredits)
			require.NoError(t, err)
			require.True(t, balance.IsZero(), "deposit must stay pending, got %s", balance)
		})
	})
}
