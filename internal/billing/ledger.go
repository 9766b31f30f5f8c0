// Package billing defines the billing ledger contract and the plan catalog
// used to interpret provider price IDs. The ledger is the system of record
// for money movements observed through the provider's webhook stream; the
// webhook handlers call it, the Postgres repository implements it.
package billing

import (
	"context"

	"devmint/internal/types"
)

// Ledger records payment and subscription lifecycle facts derived from
// authenticated provider events. Implementations must be idempotent with
// respect to redelivered events.
type Ledger interface {
	// RecordDonation persists a completed donation transaction.
	RecordDonation(ctx context.Context, rec types.DonationRecord) error

	// RecordSubscriptionPayment persists a completed recurring charge.
	RecordSubscriptionPayment(ctx context.Context, rec types.SubscriptionPayment) error

	// ActivateSubscription records a newly created subscription.
	ActivateSubscription(ctx context.Context, rec types.SubscriptionActivation) error

	// UpdateSubscription applies a change to an existing subscription.
	UpdateSubscription(ctx context.Context, rec types.SubscriptionUpdate) error

	// CancelSubscription marks a subscription canceled.
	CancelSubscription(ctx context.Context, rec types.SubscriptionCancellation) error

	// PauseSubscription marks a subscription paused.
	PauseSubscription(ctx context.Context, rec types.SubscriptionPause) error

	// ResumeSubscription marks a paused subscription active again.
	ResumeSubscription(ctx context.Context, rec types.SubscriptionResume) error

	// UpsertCustomer records a provider customer create or update.
	UpsertCustomer(ctx context.Context, rec types.CustomerRecord) error
}
