package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/commitly/ledger/internal/db"
	"github.com/commitly/ledger/internal/handlers"
	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/repository/postgres"
	"github.com/commitly/ledger/internal/service/auditlog"
	"github.com/commitly/ledger/internal/service/ledger"
	"github.com/commitly/ledger/internal/service/servicetoken"
	"github.com/commitly/ledger/internal/service/webhook"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	recorder *auditlog.Recorder
	logger   logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := servicetoken.New(servicetoken.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	recorder := auditlog.NewRecorder(storage.WebhookEvent(), logger)
	ledgerService := ledger.NewService(storage, logger)

	var providers []webhook.Provider
	if c.PaystackSecretKey != "" {
		providers = append(providers, &webhook.Paystack{SecretKey: c.PaystackSecretKey})
	}
	if c.FlutterwaveVerifHash != "" {
		providers = append(providers, &webhook.Flutterwave{VerifHash: c.FlutterwaveVerifHash})
	}
	reconciler := webhook.NewReconciler(ledgerService, recorder, logger, providers...)

	mux := handlers.NewRouter(
		ledgerService,
		reconciler,
		recorder,
		tokenManager,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation.
// The audit recorder runs alongside and drains its queue before Run returns.
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	recorderStopped := s.recorder.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-recorderStopped

	return err
}
