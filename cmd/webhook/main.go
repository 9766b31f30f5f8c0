// Package main is the entrypoint for the webhook intake Lambda function.
//
// API Gateway (proxy integration) forwards the provider's webhook POSTs to
// this function. The Lambda handler translates the proxy event into a
// standard http.Request and runs it through the exact same
// PaddleWebhookHandler the HTTP server uses, so both deployment surfaces
// share one verification and dispatch path.
//
// Cold start:
//  1. Initialize structured logger.
//  2. Load configuration (env + SSM).
//  3. Connect the database pool, build the ledger and event repositories.
//  4. Initialize SQS and CloudWatch clients.
//  5. Build the webhook handler and start the Lambda runtime.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"devmint/internal/api/handlers"
	"devmint/internal/billing"
	"devmint/internal/config"
	"devmint/internal/db"
	"devmint/internal/external"
	"devmint/internal/metrics"
	"devmint/internal/queue"
)

// Handler adapts the shared webhook HTTP handler to the API Gateway proxy
// contract.
type Handler struct {
	webhook *handlers.PaddleWebhookHandler
	logger  *slog.Logger
}

// Handle translates one proxy event, runs the webhook handler, and maps the
// captured response back to a proxy response.
func (h *Handler) Handle(ctx context.Context, proxyReq events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(proxyReq.Body)
	if proxyReq.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(proxyReq.Body)
		if err != nil {
			h.logger.WarnContext(ctx, "failed to decode base64 proxy body", "error", err)
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusBadRequest,
				Body:       `{"error":{"code":"validation_invalid_json","message":"invalid request body encoding"}}`,
				Headers:    map[string]string{"Content-Type": "application/json"},
			}, nil
		}
		body = decoded
	}

	req, err := http.NewRequestWithContext(ctx, proxyReq.HTTPMethod, proxyReq.Path, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("building request from proxy event: %w", err)
	}
	for k, v := range proxyReq.Headers {
		req.Header.Set(k, v)
	}

	capture := newResponseCapture()
	h.webhook.Handle(capture, req)

	return events.APIGatewayProxyResponse{
		StatusCode: capture.status,
		Body:       capture.body.String(),
		Headers:    flattenHeaders(capture.header),
	}, nil
}

// responseCapture is a minimal http.ResponseWriter that buffers the handler
// output for translation into a proxy response.
type responseCapture struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newResponseCapture() *responseCapture {
	return &responseCapture{status: http.StatusOK, header: make(http.Header)}
}

func (rc *responseCapture) Header() http.Header { return rc.header }

func (rc *responseCapture) WriteHeader(code int) { rc.status = code }

func (rc *responseCapture) Write(b []byte) (int, error) { return rc.body.Write(b) }

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		out[k] = strings.Join(vals, ", ")
	}
	return out
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("webhook intake Lambda initializing (cold start)")

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadConfig(config.NewSSMProvider(region))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	catalog, err := billing.NewCatalog(cfg.Paddle.PricesJSON, cfg.Paddle.DonationPriceID)
	if err != nil {
		logger.Error("failed to build price catalog", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	ledger := db.NewLedgerRepo(pool, logger)
	eventRepo, err := db.NewWebhookEventRepo(pool, logger)
	if err != nil {
		logger.Error("failed to create webhook event repository", "error", err)
		os.Exit(1)
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.EndpointURL != "" {
		awsOpts = append(awsOpts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	notifier := queue.NewNotificationPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	intakeMetrics := metrics.NewCloudWatchIntakeMetrics(
		cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)

	webhookHandler := handlers.NewPaddleWebhookHandler(
		external.NewPaddleVerifier(cfg.Paddle.WebhookSecret),
		ledger,
		catalog,
		eventRepo,
		notifier,
		intakeMetrics,
		logger,
	)

	logger.Info("webhook intake Lambda initialized",
		"environment", cfg.Environment,
		"paddle_env", cfg.Paddle.Environment,
	)

	handler := &Handler{webhook: webhookHandler, logger: logger}
	lambda.Start(handler.Handle)
}
