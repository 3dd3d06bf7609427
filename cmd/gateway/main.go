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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"liqgate/internal/checkout"
	"liqgate/internal/common/database"
	"liqgate/internal/common/middleware"
	"liqgate/internal/common/natsbus"
	"liqgate/internal/providers/liqpay"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"GATEWAY_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	Database database.Config
	NATS     natsbus.Config
	LiqPay   liqpay.Config
	Webhook  liqpay.WebhookConfig
}

const (
	streamName          = "LIQPAY"
	webhookConsumerName = "liqpay-completion"
	orderConsumerName   = "liqpay-capture"
)

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Run schema migrations before taking traffic
	if err := database.MigrateUp(cfg.Database.URL, checkout.Migrations, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	nc, err := natsbus.New(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	if _, err := nc.EnsureStream(ctx, natsbus.StreamConfig{
		Name:     streamName,
		Subjects: []string{"liqpay.>", checkout.SubjectOrderPlaced},
	}); err != nil {
		logger.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}

	webhookConsumer, err := nc.EnsureConsumer(ctx, natsbus.ConsumerConfig{
		Name:          webhookConsumerName,
		Stream:        streamName,
		FilterSubject: liqpay.SubjectWebhookEvent,
	})
	if err != nil {
		logger.Error("failed to ensure webhook consumer", "error", err)
		os.Exit(1)
	}

	orderConsumer, err := nc.EnsureConsumer(ctx, natsbus.ConsumerConfig{
		Name:          orderConsumerName,
		Stream:        streamName,
		FilterSubject: checkout.SubjectOrderPlaced,
	})
	if err != nil {
		logger.Error("failed to ensure order consumer", "error", err)
		os.Exit(1)
	}

	publisher := natsbus.NewPublisher(nc, logger)

	// Wire the checkout domain
	records := checkout.NewPostgresRecordStore(db)
	orders := checkout.NewPostgresOrderStore()
	carts := checkout.NewPostgresCartReader(db)
	completer := checkout.NewOrderCompleter(carts)
	coordinator := checkout.NewCoordinator(records, orders, db.Pool(), checkout.RequestPathWebhook, logger)

	completionSub := checkout.NewWebhookSubscriber(coordinator, completer, publisher, cfg.Webhook.EventDelay, logger)
	captureSub := checkout.NewCaptureSubscriber(orders, db.Pool(), logger)

	go func() {
		sub := natsbus.NewSubscriber(webhookConsumer, logger)
		if err := sub.Start(ctx, completionSub.Handle); err != nil && ctx.Err() == nil {
			logger.Error("webhook subscriber stopped", "error", err)
			cancel()
		}
	}()

	go func() {
		sub := natsbus.NewSubscriber(orderConsumer, logger)
		if err := sub.Start(ctx, captureSub.Handle); err != nil && ctx.Err() == nil {
			logger.Error("capture subscriber stopped", "error", err)
			cancel()
		}
	}()

	// Webhook endpoint
	webhookHandler := liqpay.NewWebhookHandler(cfg.LiqPay, publisher, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		if err := nc.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Post("/liqpay/webhook", webhookHandler.ServeHTTP)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting payment gateway",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
