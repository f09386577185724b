package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/capitalpath/ledger-service/internal/config"
	"github.com/capitalpath/ledger-service/internal/handler"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/middleware"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
	"github.com/capitalpath/ledger-service/internal/service"
	"github.com/capitalpath/ledger-service/internal/service/transfer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	pool, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	notifier, closeNotifier, err := buildNotifier(cfg)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	db := repository.NewDB(pool, cfg.LockTimeoutMS)
	accountRepo := repository.NewAccountRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	depositRepo := repository.NewDepositRepository(pool)
	investmentRepo := repository.NewInvestmentRepository(pool)
	cardRepo := repository.NewCardRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	transferSvc := transfer.NewService(accountRepo, ledgerRepo, db, notifier)
	accountSvc := service.NewAccountService(accountRepo, cardRepo, ledgerRepo, db, notifier)
	depositSvc := service.NewDepositService(depositRepo, accountRepo, ledgerRepo, transferSvc, db, notifier)
	investmentSvc := service.NewInvestmentService(investmentRepo, accountRepo, ledgerRepo, db, notifier)
	cardSvc := service.NewCardService(cardRepo, accountRepo, db, notifier)

	jwtExpiry := time.Duration(cfg.JWTExpiryM) * time.Minute
	authHandler := handler.NewAuthHandler(accountSvc, accountRepo, cfg.JWTSecret, jwtExpiry)
	accountHandler := handler.NewAccountHandler(accountSvc)
	txHandler := handler.NewTransactionHandler(depositSvc, transferSvc)
	investmentHandler := handler.NewInvestmentHandler(investmentSvc)
	cardHandler := handler.NewCardHandler(cardSvc)
	adminHandler := handler.NewAdminHandler(depositSvc, accountSvc, transferSvc, investmentSvc, cardSvc)
	healthHandler := handler.NewHealthHandler(pool)

	registry := prometheus.NewRegistry()
	middleware.RegisterMetrics(registry)

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(cfg.JWTSecret)(middleware.Idempotency(idempotencyRepo)(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(cfg.JWTSecret)(middleware.AdminOnly(middleware.Idempotency(idempotencyRepo)(h)))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", middleware.MetricsHandler(registry))

	mux.HandleFunc("POST /api/v1/auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("GET /api/v1/accounts/me", authed(accountHandler.Me))
	mux.Handle("GET /api/v1/accounts/me/ledger", authed(accountHandler.Ledger))
	mux.Handle("POST /api/v1/kyc/submit", authed(accountHandler.SubmitKYC))

	mux.Handle("POST /api/v1/deposits", authed(txHandler.CreateDeposit))
	mux.Handle("GET /api/v1/deposits", authed(txHandler.ListDeposits))
	mux.Handle("POST /api/v1/withdrawals", authed(txHandler.Withdraw))
	mux.Handle("POST /api/v1/transfers", authed(txHandler.Transfer))

	mux.Handle("POST /api/v1/investments", authed(investmentHandler.Buy))
	mux.Handle("GET /api/v1/investments", authed(investmentHandler.List))

	mux.Handle("POST /api/v1/cards/requests", authed(cardHandler.Request))
	mux.Handle("GET /api/v1/cards", authed(cardHandler.List))
	mux.Handle("POST /api/v1/cards/{id}/spend", authed(cardHandler.Spend))
	mux.Handle("POST /api/v1/cards/{id}/repay", authed(cardHandler.Repay))

	mux.Handle("GET /api/v1/admin/deposits", admin(adminHandler.ListDeposits))
	mux.Handle("POST /api/v1/admin/deposits/{id}/decision", admin(adminHandler.DecideDeposit))
	mux.Handle("POST /api/v1/admin/accounts/{id}/adjust", admin(adminHandler.AdjustBalance))
	mux.Handle("POST /api/v1/admin/accounts/{id}/deactivate", admin(adminHandler.DeactivateAccount))
	mux.Handle("POST /api/v1/admin/accounts/{id}/activate", admin(adminHandler.ActivateAccount))
	mux.Handle("GET /api/v1/admin/accounts/{id}/reconcile", admin(adminHandler.ReconcileAccount))
	mux.Handle("POST /api/v1/admin/kyc/{id}/decision", admin(adminHandler.DecideKYC))
	mux.Handle("POST /api/v1/admin/investments/{id}/adjust", admin(adminHandler.AdjustInvestment))
	mux.Handle("POST /api/v1/admin/investments/{id}/price", admin(adminHandler.UpdateInvestmentPrice))
	mux.Handle("DELETE /api/v1/admin/investments/{id}", admin(adminHandler.RemoveInvestment))
	mux.Handle("GET /api/v1/admin/cards/requests", admin(adminHandler.ListCardRequests))
	mux.Handle("POST /api/v1/admin/cards/requests/{id}/decision", admin(adminHandler.DecideCardRequest))
	mux.Handle("PATCH /api/v1/admin/cards/{id}", admin(adminHandler.UpdateCard))

	root := middleware.Tracing(middleware.Logging(middleware.Metrics(middleware.Recovery(mux))))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		cancel()
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}

// buildNotifier wires the AMQP publisher when a broker is configured and
// falls back to an in-memory recorder otherwise, so the service can run
// without RabbitMQ in development.
func buildNotifier(cfg *config.Config) (notify.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		slog.Info("no broker configured, notifications are recorded in memory")
		return notify.NewRecorder(), func() {}, nil
	}

	pub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.EventExchange)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			slog.Error("failed to close broker connection", "error", err)
		}
	}, nil
}
