package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/leasehub-server/internal/api"
	"github.com/rongwang/leasehub-server/internal/audit"
	"github.com/rongwang/leasehub-server/internal/auth"
	"github.com/rongwang/leasehub-server/internal/config"
	"github.com/rongwang/leasehub-server/internal/gateway"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/notify"
	"github.com/rongwang/leasehub-server/internal/reconcile"
	"github.com/rongwang/leasehub-server/internal/repository"
	"github.com/rongwang/leasehub-server/internal/service"
	"github.com/rongwang/leasehub-server/internal/utils"
	"github.com/rongwang/leasehub-server/internal/webhook"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sqlx.DB
	dedupe   webhook.DedupeStore
	notifier *notify.Dispatcher
	metrics  *metrics.Metrics
	service  service.Service
	sweeper  *reconcile.Sweeper
}

func newApp() (*app, error) {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := utils.NewLogger(utils.LoggerConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Server.Env,
		}); err != nil {
			logger.Warn("sentry disabled", zap.Error(err))
		}
	}

	// Set up database connection
	db, err := config.SetupDatabase(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	dedupe, err := webhook.NewDedupeStore(cfg.Webhook, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Create repository
	repo := repository.NewPostgresRepository(db)

	m := metrics.New()
	signatures := gateway.NewSignatureClient(cfg.Signature, logger)
	payments := gateway.NewPaymentClient(cfg.Payment, logger)
	notifier := notify.NewDispatcher(notify.NewMailer(cfg.Email), cfg.Server.BaseURL, logger)

	// Create service
	svc := service.NewDefaultService(service.Params{
		Repo:       repo,
		Auth:       auth.NewProvider(cfg.Auth),
		Signatures: signatures,
		Payments:   payments,
		Recorder:   audit.NewRecorder(logger),
		Notifier:   notifier,
		Dedupe:     dedupe,
		Metrics:    m,
		Logger:     logger,
	})

	sweeper := reconcile.NewSweeper(repo, signatures, payments, svc, cfg.Reconcile, m, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		dedupe:   dedupe,
		notifier: notifier,
		metrics:  m,
		service:  svc,
		sweeper:  sweeper,
	}, nil
}

// close waits for queued emails and releases connections
func (a *app) close() {
	a.notifier.Wait()

	if closer, ok := a.dedupe.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("failed to close dedupe store", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}

	sentry.Flush(2 * time.Second)
	_ = a.logger.Sync()
}

func (a *app) router() (*gin.Engine, error) {
	signatureVerifier, err := webhook.NewVerifier(a.cfg.Webhook.SignatureSecret)
	if err != nil {
		return nil, fmt.Errorf("signature webhook secret: %w", err)
	}
	paymentVerifier, err := webhook.NewVerifier(a.cfg.Webhook.PaymentSecret)
	if err != nil {
		return nil, fmt.Errorf("payment webhook secret: %w", err)
	}
	if a.cfg.Webhook.SignatureSecret == "" || a.cfg.Webhook.PaymentSecret == "" {
		a.logger.Warn("a webhook secret is not configured; its callbacks will be rejected")
	}

	if a.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create API handler
	handler := api.NewHandler(a.service, signatureVerifier, paymentVerifier, a.metrics, a.logger)

	// Set up Gin router
	router := gin.New()
	router.Use(
		gin.Recovery(),
		api.SentryMiddleware(a.cfg.Sentry.DSN != ""),
		api.RequestLogger(a.logger.Named("http")),
	)

	// Set up routes
	handler.SetupRoutes(router)

	return router, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	router, err := a.router()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Reconcile.Enabled {
		if err := a.sweeper.Start(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
	}
	if a.cfg.Reconcile.Enabled {
		if err := a.sweeper.Stop(shutdownCtx); err != nil {
			a.logger.Error("reconciliation sweep did not stop in time", zap.Error(err))
		}
	}

	a.logger.Info("server exited")
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.sweeper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation sweep failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d applied=%d flagged=%d pending=%d failed=%d\n",
		report.Checked, report.Applied, report.Flagged, report.Pending, report.Failed)
	return nil
}
