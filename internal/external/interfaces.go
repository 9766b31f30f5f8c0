package external

import (
	"context"
	"time"
)

// Provider event types as they appear in the webhook payload's event_type
// field and in provider-side checkout callbacks.
const (
	EventTransactionCreated   = "transaction.created"
	EventTransactionCompleted = "transaction.completed"

	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionPaused   = "subscription.paused"
	EventSubscriptionResumed  = "subscription.resumed"

	EventCustomerCreated = "customer.created"
	EventCustomerUpdated = "customer.updated"

	// Checkout lifecycle events emitted by the provider during an active
	// checkout session (distinct from the webhook event stream).
	EventCheckoutLoaded    = "checkout.loaded"
	EventCheckoutCompleted = "checkout.completed"
	EventCheckoutClosed    = "checkout.closed"
	EventCheckoutError     = "checkout.error"
)

// WebhookVerifier authenticates a raw webhook payload against its signature
// header. Implementations must fail closed: any parse or decode problem in
// the header is treated as an invalid signature.
type WebhookVerifier interface {
	// Verify returns nil if the signature is authentic for the payload,
	// or an AppError with code ErrCodeWebhookSignatureInvalid otherwise.
	Verify(payload []byte, signatureHeader string) error
}

// CheckoutItem is a single line item in a checkout transaction request.
// Exactly one of PriceID or CustomPrice is set: PriceID references a
// catalog price, CustomPrice carries a caller-specified amount (donations).
type CheckoutItem struct {
	PriceID     string
	Quantity    int
	CustomPrice *CustomPrice
}

// CustomPrice describes a variable-amount price attached to a catalog
// product, used for donation checkouts where the payer picks the amount.
type CustomPrice struct {
	ProductID    string
	AmountCents  int64
	CurrencyCode string
	Description  string
}

// CheckoutRequest is the provider-agnostic request to open a checkout
// transaction with the payment provider.
type CheckoutRequest struct {
	Items         []CheckoutItem
	CustomerEmail string
	CustomData    map[string]string
	SuccessURL    string
}

// CheckoutTransaction is the provider's handle for an opened checkout. The
// ClientToken is handed to the frontend to resume the hosted checkout flow.
type CheckoutTransaction struct {
	TransactionID string
	Status        string
	ClientToken   string
	CheckoutURL   string
	CreatedAt     time.Time
}

// Price is a catalog price as returned by the provider's prices endpoint.
type Price struct {
	ID           string
	ProductID    string
	Description  string
	AmountCents  int64
	CurrencyCode string
	Interval     string // "month", "year", or "" for one-time prices
}

// CheckoutAPI is the narrow surface of the payment provider's API that the
// checkout session manager depends on.
type CheckoutAPI interface {
	// ListPrices fetches the active catalog prices. Used as the
	// initialization handshake: a successful authenticated fetch proves
	// the credentials and connectivity are good.
	ListPrices(ctx context.Context) ([]Price, error)

	// CreateCheckoutTransaction opens a checkout transaction with the
	// provider and returns the handle for the hosted checkout flow.
	CreateCheckoutTransaction(ctx context.Context, req CheckoutRequest) (*CheckoutTransaction, error)
}

// EmailMessage is a single outbound transactional email.
type EmailMessage struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// EmailProvider sends transactional email (thank-you notes, welcome
// messages, receipts).
type EmailProvider interface {
	Send(ctx context.Context, msg EmailMessage) error
}
