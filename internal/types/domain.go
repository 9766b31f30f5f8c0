package types

import "time"

// The records in this file are the flat payloads passed to the billing
// ledger collaborators. They mirror the fields the provider includes in its
// webhook event objects; timestamps are RFC 3339 values parsed to UTC.

// DonationRecord captures a completed donation transaction.
type DonationRecord struct {
	TransactionID string
	Amount        string // decimal string as reported by the provider
	CurrencyCode  string
	CustomerEmail string
	CustomData    map[string]string
}

// SubscriptionPayment captures a completed recurring subscription charge.
type SubscriptionPayment struct {
	TransactionID string
	Amount        string
	CurrencyCode  string
	CustomerEmail string
	PlanKind      PlanKind
	BillingCycle  BillingCycle
	CustomData    map[string]string
}

// SubscriptionActivation captures a newly created subscription.
type SubscriptionActivation struct {
	SubscriptionID string
	CustomerEmail  string
	PriceID        string
	Status         SubscriptionStatus
	NextBilledAt   *time.Time
}

// SubscriptionUpdate captures a change to an existing subscription.
type SubscriptionUpdate struct {
	SubscriptionID string
	Status         SubscriptionStatus
	NextBilledAt   *time.Time
	PriceIDs       []string
}

// SubscriptionCancellation captures a canceled subscription.
type SubscriptionCancellation struct {
	SubscriptionID string
	CanceledAt     *time.Time
	Reason         string
}

// SubscriptionPause captures a paused subscription.
type SubscriptionPause struct {
	SubscriptionID string
	PausedAt       *time.Time
}

// SubscriptionResume captures a resumed subscription.
type SubscriptionResume struct {
	SubscriptionID string
	ResumedAt      *time.Time
}

// CustomerRecord captures a provider customer create or update.
type CustomerRecord struct {
	CustomerID string
	Email      string
	Name       string
	OccurredAt *time.Time
}
