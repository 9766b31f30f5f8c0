// Package main is the entrypoint for the Email Worker Lambda function.
//
// The Email Worker consumes PaymentNotification messages from the
// notifications SQS queue, renders them into transactional emails via the
// Composer, and delivers them through the EmailProvider. It implements the
// SQS Lambda handler pattern where each invocation receives a batch of SQS
// messages.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load AWS SDK configuration.
//  3. Read environment variables for the SQS queue URL and sender identity.
//  4. Initialize SQS client and NotificationPublisher for retry re-queuing.
//  5. Initialize the EmailProvider (SendGrid, or a stub without credentials).
//  6. Register handler and call lambda.Start.
//
// Handler flow per message:
//  1. Unmarshal PaymentNotification from the message body.
//  2. Compose the email (unknown kinds and missing recipients are permanent
//     failures: log and ACK, never retry).
//  3. Send via the provider. Transient upstream errors re-publish the
//     message with backoff; permanent errors are logged and ACKed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"devmint/internal/email"
	"devmint/internal/external"
	"devmint/internal/queue"
	"devmint/internal/types"
)

// maxDeliveryAttempts caps how many times a notification is re-published
// before it is dropped with an error log.
const maxDeliveryAttempts = 3

// retryBaseDelay is the backoff unit between delivery attempts. The actual
// delay doubles per attempt: 30s, 60s, 120s.
const retryBaseDelay = 30 * time.Second

// Handler holds the dependencies for the email worker Lambda handler.
type Handler struct {
	composer  *email.Composer
	provider  external.EmailProvider
	publisher *queue.NotificationPublisher
	logger    *slog.Logger
}

// Handle processes an SQS event containing one or more payment notifications.
// Each message is processed independently. Lambda SQS integration uses
// partial batch responses: messages that fail processing are returned in
// batchItemFailures so SQS can retry them.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			// Report partial failure so SQS retries only this message.
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage handles a single SQS message through composition and
// delivery. A nil return ACKs the message.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.PaymentNotification
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal payment notification",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure - do not retry (return nil to ACK).
		return nil
	}

	logger := h.logger.With(
		"notification_id", msg.NotificationID,
		"kind", string(msg.Kind),
		"transaction_id", msg.TransactionID,
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	logger.InfoContext(ctx, "processing payment notification")

	mail, err := h.composer.Compose(msg)
	if err != nil {
		// Unknown kinds and missing recipients cannot succeed on retry.
		logger.ErrorContext(ctx, "payment notification is not composable, dropping",
			"error", err.Error(),
		)
		return nil
	}

	sendErr := h.provider.Send(ctx, mail)
	if sendErr == nil {
		logger.InfoContext(ctx, "payment email delivered", "to", mail.ToEmail)
		return nil
	}

	if !isTransient(sendErr) {
		logger.ErrorContext(ctx, "payment email permanently rejected by provider, dropping",
			"error", sendErr.Error(),
		)
		return nil
	}

	return h.scheduleRetry(ctx, msg, sendErr, logger)
}

// scheduleRetry re-publishes the notification with exponential backoff and
// ACKs the original message. When the attempt budget is exhausted the
// notification is dropped with an error log; receipt emails are best-effort
// and the billing ledger is already written.
func (h *Handler) scheduleRetry(ctx context.Context, msg types.PaymentNotification, sendErr error, logger *slog.Logger) error {
	if msg.RetryCount >= maxDeliveryAttempts-1 {
		logger.ErrorContext(ctx, "payment email delivery abandoned after max attempts",
			"attempts", msg.RetryCount+1,
			"error", sendErr.Error(),
		)
		return nil
	}

	delay := retryBaseDelay * (1 << msg.RetryCount)
	if err := h.publisher.PublishRetry(ctx, msg, delay); err != nil {
		// Re-publish failed: fall back to SQS redelivery of the original
		// message via a batch item failure.
		return fmt.Errorf("re-enqueue for retry: %w", err)
	}
	return nil
}

// isTransient reports whether a provider error is worth retrying. Rate
// limits and upstream outages resolve themselves; everything else (bad
// recipient, rejected payload) will fail identically on redelivery.
func isTransient(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamRateLimited, types.ErrCodeUpstreamUnavailable:
		return true
	default:
		return false
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("email worker Lambda initializing (cold start)")

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	notificationQueueURL := os.Getenv("SQS_NOTIFICATIONS")
	if notificationQueueURL == "" {
		logger.Error("SQS_NOTIFICATIONS is required")
		os.Exit(1)
	}

	fromAddress := os.Getenv("EMAIL_FROM_ADDRESS")
	if fromAddress == "" {
		fromAddress = "support@devmint.site"
	}
	fromName := os.Getenv("EMAIL_FROM_NAME")
	if fromName == "" {
		fromName = "Devmint"
	}

	// Initialize the email provider. Without credentials (development,
	// LocalStack) deliveries are logged by the stub instead of sent.
	var provider external.EmailProvider
	sendgridKey := types.SecretString(os.Getenv("SENDGRID_API_KEY"))
	if sendgridKey.Unmask() == "" {
		logger.Warn("SENDGRID_API_KEY not set, using stub email provider")
		provider = external.NewStubEmailProvider(logger)
	} else {
		provider = external.NewSendGridClient(
			&http.Client{Timeout: 10 * time.Second},
			external.SendGridClientConfig{
				APIKey:      sendgridKey,
				FromAddress: fromAddress,
				FromName:    fromName,
				Logger:      logger,
			},
		)
	}

	composer, err := email.NewComposer(fromName)
	if err != nil {
		logger.Error("failed to initialize email composer", "error", err)
		os.Exit(1)
	}

	publisher := queue.NewNotificationPublisherForQueue(
		sqs.NewFromConfig(awsCfg), notificationQueueURL, logger)

	handler := &Handler{
		composer:  composer,
		provider:  provider,
		publisher: publisher,
		logger:    logger,
	}

	logger.Info("email worker Lambda initialized",
		"notification_queue", notificationQueueURL,
		"from_address", fromAddress,
	)

	// Local mode: read JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local integration testing without the
	// AWS Lambda RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/email-worker/main.go
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(context.Background(), sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			logger.Warn("handler reported partial failures",
				"failed_count", len(response.BatchItemFailures),
			)
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		return
	}

	lambda.Start(handler.Handle)
}
