package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/creatorhub/backend/internal/auth"
	"github.com/creatorhub/backend/internal/cache"
	"github.com/creatorhub/backend/internal/config"
	"github.com/creatorhub/backend/internal/db"
	"github.com/creatorhub/backend/internal/execution"
	"github.com/creatorhub/backend/internal/kyc"
	"github.com/creatorhub/backend/internal/ledger"
	"github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/payouts"
	"github.com/creatorhub/backend/internal/router"
	"github.com/creatorhub/backend/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool, logger); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Cannot reach Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	holds, err := config.LoadHoldPolicy(cfg.HoldPolicyFile, cfg.DefaultHoldDays)
	if err != nil {
		slog.Error("Failed to load hold policy", "file", cfg.HoldPolicyFile, "error", err)
		os.Exit(1)
	}

	// Ledger
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), ledger.Options{
		Policy:      holds,
		ReserveRate: cfg.ReserveRate,
		Currency:    cfg.Currency,
	})

	// KYC
	gate := kyc.NewGate(kyc.NewRepository(pool), kyc.Options{
		VerifyBaseURL: cfg.KYCVerifyBaseURL,
		SessionTTL:    cfg.KYCSessionTTL,
	}, logger)

	// Payouts: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn payouts.InsertDispatchTxFunc
	insertDispatch := func(ctx context.Context, tx pgx.Tx, args execution.DispatchPayoutArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	payoutsSvc := payouts.NewService(payouts.NewRepository(pool), ledgerSvc, gate, insertDispatch, payouts.Options{
		Minimum:  cfg.PayoutMinimum,
		Currency: cfg.Currency,
	}, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewDispatchPayoutWorker(payoutsSvc, cfg.PayoutRailURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.DispatchPayoutArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	validator, err := payouts.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(cfg.JWTSecret)
	idem := cache.NewIdempotencyStore(rdb)

	ledgerHandler := ledger.NewHandler(ledgerSvc, logger)
	payoutsHandler := payouts.NewHandler(payoutsSvc, validator, logger)
	kycHandler := kyc.NewHandler(gate, logger)

	mux := router.New(router.Handlers{
		Ledger:  ledgerHandler,
		Payouts: payoutsHandler,
		Kyc:     kycHandler,
	}, middleware.CreatorAuth(authSvc), middleware.Idempotency(idem, cfg.IdempotencyTTL, logger))
	RegisterWebhookRoutes(mux, cfg.WebhookSecret, ledgerHandler, payoutsHandler, kycHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes jobs)
	go func() {
		if err := riverClient.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	sched := scheduler.New(gate, cfg.KYCSweepSchedule, logger)
	if err := sched.Start(ctx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sched.Stop()
		_ = srv.Shutdown(shutdownCtx)
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Warn("River client stop", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
