package types

// PlanKind distinguishes the two checkout intents the site sells.
type PlanKind string

const (
	PlanSubscription PlanKind = "subscription"
	PlanDonation     PlanKind = "donation"
)

// BillingCycle identifies the renewal period of a subscription plan.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// SubscriptionStatus mirrors the provider's subscription lifecycle states.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusPaused   SubscriptionStatus = "paused"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// CheckoutState tracks the session manager's initialization lifecycle.
// Transitions: Uninitialized -> Initializing -> Ready, with InitFailed
// reachable from Initializing and recoverable only via ForceReinitialize.
type CheckoutState string

const (
	CheckoutUninitialized CheckoutState = "uninitialized"
	CheckoutInitializing  CheckoutState = "initializing"
	CheckoutReady         CheckoutState = "ready"
	CheckoutInitFailed    CheckoutState = "init_failed"
)

// NotificationKind identifies which post-payment email a queued
// notification should produce.
type NotificationKind string

const (
	NotifyDonationThanks      NotificationKind = "donation_thanks"
	NotifySubscriptionWelcome NotificationKind = "subscription_welcome"
	NotifyPaymentReceipt      NotificationKind = "payment_receipt"
)
