// Package metrics emits webhook intake telemetry to AWS CloudWatch. Metric
// emission is fire-and-forget: a CloudWatch outage never affects request
// handling, failures are logged and dropped.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Dimension and metric names.
const (
	MetricEventsReceived    = "WebhookEventsReceived"
	MetricSignatureFailure  = "WebhookSignatureFailures"
	MetricDispatchOutcome   = "WebhookDispatchOutcome"
	MetricDispatchLatency   = "WebhookDispatchLatency"

	DimEventType = "EventType"
	DimResult    = "Result"
)

// DispatchResult labels the outcome dimension of a dispatch metric.
type DispatchResult string

const (
	ResultProcessed DispatchResult = "processed"
	ResultIgnored   DispatchResult = "ignored"
	ResultFailed    DispatchResult = "failed"
)

// IntakeMetrics records webhook intake outcomes.
type IntakeMetrics interface {
	EventReceived(ctx context.Context, eventType string)
	SignatureFailure(ctx context.Context)
	DispatchOutcome(ctx context.Context, eventType string, result DispatchResult, latency time.Duration)
}

// CloudWatchIntakeMetrics implements IntakeMetrics against CloudWatch.
type CloudWatchIntakeMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ IntakeMetrics = (*CloudWatchIntakeMetrics)(nil)

// NewCloudWatchIntakeMetrics creates an IntakeMetrics publishing to the
// given CloudWatch namespace.
func NewCloudWatchIntakeMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchIntakeMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchIntakeMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// EventReceived counts one authenticated webhook delivery by event type.
func (m *CloudWatchIntakeMetrics) EventReceived(ctx context.Context, eventType string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricEventsReceived),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimEventType), Value: aws.String(eventType)},
		},
	})
}

// SignatureFailure counts one rejected delivery. No event-type dimension:
// unauthenticated payloads are untrusted and their fields are not read.
func (m *CloudWatchIntakeMetrics) SignatureFailure(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricSignatureFailure),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

// DispatchOutcome records the result and latency of dispatching one event to
// its handler.
func (m *CloudWatchIntakeMetrics) DispatchOutcome(ctx context.Context, eventType string, result DispatchResult, latency time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimEventType), Value: aws.String(eventType)},
		{Name: aws.String(DimResult), Value: aws.String(string(result))},
	}
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDispatchOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDispatchLatency),
		Value:      aws.Float64(float64(latency.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimEventType), Value: aws.String(eventType)},
		},
	})
}

func (m *CloudWatchIntakeMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish intake metrics",
			"error", err.Error(),
		)
	}
}

// NopIntakeMetrics discards all metrics. Used in local mode and tests.
type NopIntakeMetrics struct{}

var _ IntakeMetrics = (*NopIntakeMetrics)(nil)

func (NopIntakeMetrics) EventReceived(context.Context, string)  {}
func (NopIntakeMetrics) SignatureFailure(context.Context)       {}
func (NopIntakeMetrics) DispatchOutcome(context.Context, string, DispatchResult, time.Duration) {
}
