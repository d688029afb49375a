package e2e

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/commitly/ledger/internal/handlers"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/repository/postgres"
	"github.com/commitly/ledger/internal/service/auditlog"
	"github.com/commitly/ledger/internal/service/ledger"
	"github.com/commitly/ledger/internal/service/servicetoken"
	"github.com/commitly/ledger/internal/service/webhook"
)

const (
	// Secrets shared by every e2e test
	ServiceSecretKey  = "test-secret"
	PaystackSecretKey = "sk_test_e2e"
)

type Services struct {
	Ledger   *ledger.Service
	Recorder *auditlog.Recorder
	Tokens   *servicetoken.Manager
}

// Serve wires the whole service over the pool and runs it on a test server.
// Tests run against committed state, so use a fresh owner per test.
func Serve(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, services Services)) {
	t.Helper()

	storage := postgres.NewStorage(dbpool)
	log := logger.NewNoOpLogger()

	tokens, err := servicetoken.New(servicetoken.Config{SecretKey: ServiceSecretKey})
	require.NoError(t, err, "token manager should be created without errors")

	recorder := auditlog.NewRecorder(storage.WebhookEvent(), log)
	ledgerService := ledger.NewService(storage, log)
	reconciler := webhook.NewReconciler(ledgerService, recorder, log, &webhook.Paystack{SecretKey: PaystackSecretKey})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := recorder.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	router := handlers.NewRouter(ledgerService, reconciler, recorder, tokens, log)

	srv := httptest.NewServer(router)
	defer srv.Close()

	fn(srv.URL, Services{
		Ledger:   ledgerService,
		Recorder: recorder,
		Tokens:   tokens,
	})
}
