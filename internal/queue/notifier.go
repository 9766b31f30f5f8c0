// Package queue provides the SQS-based producer that hands accepted payment
// events to the email worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"devmint/internal/config"
	"devmint/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NotificationPublisher enqueues PaymentNotification messages for the email
// worker. Publishing is best-effort from the webhook handler's point of
// view: a queue outage must not turn an otherwise processed event into a
// provider-visible failure, so callers log and continue on error.
type NotificationPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewNotificationPublisher creates a publisher bound to the notifications
// queue from AWS configuration.
func NewNotificationPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *NotificationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationPublisher{
		client:   client,
		queueURL: awsCfg.NotificationQueue,
		logger:   logger,
	}
}

// NewNotificationPublisherForQueue creates a publisher bound to an explicit
// queue URL. Used by the email worker, which receives only the queue URL.
func NewNotificationPublisherForQueue(client SQSSender, queueURL string, logger *slog.Logger) *NotificationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish fills in the notification's identity and trace fields, serializes
// it, and sends it to the notifications queue.
func (p *NotificationPublisher) Publish(ctx context.Context, msg types.PaymentNotification) error {
	if msg.NotificationID == "" {
		msg.NotificationID = uuid.New().String()
	}
	if msg.TraceID == "" {
		msg.TraceID = types.GetRequestID(ctx)
	}
	msg.EnqueuedAt = time.Now().UTC()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal PaymentNotification: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send PaymentNotification to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "payment notification enqueued",
		"notification_id", msg.NotificationID,
		"kind", string(msg.Kind),
		"transaction_id", msg.TransactionID,
		"subscription_id", msg.SubscriptionID,
		"trace_id", msg.TraceID,
	)
	return nil
}

// maxSQSDelay is the SQS DelaySeconds ceiling (15 minutes).
const maxSQSDelay = 900 * time.Second

// PublishRetry re-enqueues a notification the email worker failed to deliver.
// The original message is ACKed by the worker; retry state lives in the new
// message so the queue itself drives the backoff schedule. RetryCount is
// incremented before sending.
func (p *NotificationPublisher) PublishRetry(ctx context.Context, msg types.PaymentNotification, delay time.Duration) error {
	msg.RetryCount++

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal PaymentNotification retry: %w", err)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay.Seconds()),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to re-enqueue PaymentNotification: %w", err)
	}

	p.logger.InfoContext(ctx, "payment notification retry scheduled",
		"notification_id", msg.NotificationID,
		"kind", string(msg.Kind),
		"retry_count", msg.RetryCount,
		"delay_seconds", int(delay.Seconds()),
	)
	return nil
}
