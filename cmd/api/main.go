// Package main is the entry point for the Devmint payments API server.
//
// It loads configuration, wires the provider clients, repositories, and
// handlers, builds the HTTP server with the core chassis (middleware,
// routing, health checks), and starts listening. Graceful shutdown is
// handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"devmint/internal/api/handlers"
	"devmint/internal/billing"
	"devmint/internal/checkout"
	"devmint/internal/config"
	"devmint/internal/core"
	"devmint/internal/db"
	"devmint/internal/external"
	"devmint/internal/metrics"
	"devmint/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(configSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("devmint payments API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	catalog, err := billing.NewCatalog(cfg.Paddle.PricesJSON, cfg.Paddle.DonationPriceID)
	if err != nil {
		return fmt.Errorf("building price catalog: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	ledger := db.NewLedgerRepo(pool, logger)
	eventRepo, err := db.NewWebhookEventRepo(pool, logger)
	if err != nil {
		return fmt.Errorf("creating webhook event repository: %w", err)
	}

	// AWS clients: SQS for the notification pipeline, CloudWatch for
	// intake metrics. LocalStack endpoint honored when configured.
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	notifier := queue.NewNotificationPublisher(sqsClient, cfg.AWS, logger)

	var intakeMetrics metrics.IntakeMetrics = metrics.NewCloudWatchIntakeMetrics(
		cwClient, cfg.Observability.MetricNamespace, logger)
	if cfg.Environment == "local" {
		intakeMetrics = metrics.NopIntakeMetrics{}
	}

	// Provider-facing pieces: webhook verifier and checkout session
	// manager. Local mode runs against stubs so the server can boot
	// without provider credentials.
	var verifier external.WebhookVerifier
	var clientFactory checkout.ClientFactory
	if cfg.Environment == "local" && cfg.Paddle.APIKey.Unmask() == "" {
		verifier = external.NewStubWebhookVerifier(logger)
		clientFactory = func() (external.CheckoutAPI, error) {
			return external.NewStubCheckoutAPI(logger), nil
		}
	} else {
		verifier = external.NewPaddleVerifier(cfg.Paddle.WebhookSecret)
		paddleCfg := external.PaddleClientConfig{
			APIKey:      cfg.Paddle.APIKey,
			Environment: cfg.Paddle.Environment,
			Logger:      logger,
		}
		clientFactory = func() (external.CheckoutAPI, error) {
			return external.NewPaddleClient(&http.Client{Timeout: 20 * time.Second}, paddleCfg), nil
		}
	}

	sessions := checkout.NewSessionManager(
		clientFactory,
		checkout.Options{
			DonationPriceID: cfg.Paddle.DonationPriceID,
			PlanPriceIDs:    catalog.PlanPriceIDs(),
			SuccessURL:      cfg.Server.SiteURL + "/thank-you",
		},
		checkout.Callbacks{
			OnError: func(err error) {
				logger.Error("checkout session error", "error", err.Error())
			},
		},
		logger,
	)

	webhookHandler := handlers.NewPaddleWebhookHandler(
		verifier, ledger, catalog, eventRepo, notifier, intakeMetrics, logger)
	checkoutHandler := handlers.NewCheckoutHandler(sessions, catalog, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, dbProbe{pool: pool})
	srv.RouteRegistrars = append(srv.RouteRegistrars,
		func(r chi.Router) { webhookHandler.RegisterRoutes(r) },
		func(r chi.Router) { checkoutHandler.RegisterRoutes(r) },
	)
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// configSecretProvider selects the secret backend for config loading. SSM
// resolution is bypassed in local mode (the loader checks APP_ENV itself);
// non-local environments resolve _SSM_PARAM pointers from Parameter Store.
func configSecretProvider() config.SecretProvider {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// loadAWSConfig builds the SDK config, pointing at LocalStack when
// AWS_ENDPOINT_URL is set.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// dbProbe adapts the pgx pool to the readiness probe interface.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string                    { return "database" }
func (p dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
