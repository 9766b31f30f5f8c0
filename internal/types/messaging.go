package types

import "time"

// PaymentNotification is the SQS payload sent from the webhook intake to the
// email worker after a payment event is accepted. It carries everything the
// worker needs to render and deliver a post-payment email without querying
// the provider again. JSON tags use snake_case to match the webhook payloads.
type PaymentNotification struct {
	// Core identity
	NotificationID string           `json:"notification_id"`
	Kind           NotificationKind `json:"kind"`

	// Provider correlation
	TransactionID  string `json:"transaction_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`

	// Recipient and content inputs
	CustomerEmail string   `json:"customer_email"`
	Amount        string   `json:"amount,omitempty"` // decimal string, provider units
	CurrencyCode  string   `json:"currency_code,omitempty"`
	PlanKind      PlanKind `json:"plan_kind,omitempty"`

	// Retry state: carried across the SQS publish-consume cycle and
	// incremented by the worker on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID    string    `json:"trace_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
