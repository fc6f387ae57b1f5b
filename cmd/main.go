/**
 * @description
 * This is the main entry point for the lifecycle service. It wires together
 * all the components of the application: configuration, the PostgreSQL pool,
 * the RabbitMQ event producer, the billing client, the repositories, the
 * sweep jobs with their cron scheduler, and the member action service.
 * Finally, it starts the HTTP server and runs until a shutdown signal.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ebardia/band-it-sub000/internal/api"
	"github.com/ebardia/band-it-sub000/internal/app"
	"github.com/ebardia/band-it-sub000/internal/config"
	"github.com/ebardia/band-it-sub000/internal/store"
	"github.com/ebardia/band-it-sub000/pkg/billingclient"
	"github.com/ebardia/band-it-sub000/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up channel to listen for OS signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// IMPORTANT: Disable prepared statements to work with PgBouncer transaction pooling
	// Use simple protocol to avoid statement cache errors (SQLSTATE 42P05)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Set up RabbitMQ producer. The engine treats the broker as a side
	// channel, so a failed connection downgrades to the no-op fallback.
	var producer rabbitmq.Publisher
	producer, err = rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ, event publishing disabled", "error", err)
		producer = &rabbitmq.EventProducerFallback{}
	}
	defer producer.Close()

	// Initialize application layers
	subscriptions := store.NewSubscriptionRepository(dbpool)
	payments := store.NewPaymentRepository(dbpool)
	donations := store.NewDonationRepository(dbpool)
	claims := store.NewClaimRepository(dbpool)
	verifications := store.NewVerificationRepository(dbpool)
	bands := store.NewBandRepository(dbpool)
	notifications := store.NewNotificationRepository(dbpool)
	audits := store.NewAuditRepository(dbpool)

	notifier := app.NewGate(notifications, bands, producer, logger)
	billing := billingclient.NewClient(cfg.BillingAPIURL, cfg.BillingAPIKey)
	retrier := app.NewRetrier(app.RetryPolicy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay(),
		MaxDelay:     cfg.RetryMaxDelay(),
		Multiplier:   2,
		Reset: func(ctx context.Context) {
			// Drop pooled connections so the next attempt dials fresh.
			dbpool.Reset()
		},
	}, logger)

	jobs := app.NewJobs(*cfg, app.Stores{
		Subscriptions: subscriptions,
		Payments:      payments,
		Donations:     donations,
		Claims:        claims,
		Verifications: verifications,
		Bands:         bands,
	}, billing, notifier, producer, retrier, logger)
	actions := app.NewActions(*cfg, payments, donations, claims, verifications, bands, notifier, logger)

	// Start the cron scheduler in the background
	scheduler := app.NewScheduler(jobs, logger, *cfg)
	scheduler.Start()
	logger.Info("sweep scheduler started")

	handlers := api.NewHandlers(jobs, actions, audits, *cfg, logger)
	webhooks := api.NewWebhookHandler(jobs, cfg.BillingWebhookSecret, logger)
	defer webhooks.Close()
	router := api.NewRouter(handlers, webhooks, *cfg)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Stop the scheduler and wait for in-flight sweeps to finish
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("sweep scheduler stopped")

	// Create a context with a timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Attempt to gracefully shut down the server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
