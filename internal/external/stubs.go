package external

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs let the application boot in local mode without real provider
// credentials. They log every call and return predictable defaults.
// ---------------------------------------------------------------------------

// StubCheckoutAPI implements CheckoutAPI by logging calls and returning
// test-safe defaults. Used when APP_ENV=local.
type StubCheckoutAPI struct {
	logger *slog.Logger
}

// NewStubCheckoutAPI creates a new StubCheckoutAPI.
func NewStubCheckoutAPI(logger *slog.Logger) *StubCheckoutAPI {
	return &StubCheckoutAPI{logger: logger}
}

func (s *StubCheckoutAPI) ListPrices(ctx context.Context) ([]Price, error) {
	s.logger.InfoContext(ctx, "stub: ListPrices called")
	return []Price{
		{ID: "pri_stub_monthly", ProductID: "pro_stub", Description: "Stub monthly plan", AmountCents: 900, CurrencyCode: "USD", Interval: "month"},
		{ID: "pri_stub_yearly", ProductID: "pro_stub", Description: "Stub yearly plan", AmountCents: 9000, CurrencyCode: "USD", Interval: "year"},
		{ID: "pri_stub_donation", ProductID: "pro_stub_donation", Description: "Stub donation", AmountCents: 0, CurrencyCode: "USD"},
	}, nil
}

func (s *StubCheckoutAPI) CreateCheckoutTransaction(ctx context.Context, req CheckoutRequest) (*CheckoutTransaction, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutTransaction called",
		"item_count", len(req.Items),
		"customer_email", req.CustomerEmail,
	)
	return &CheckoutTransaction{
		TransactionID: fmt.Sprintf("txn_stub_%d", time.Now().UnixNano()),
		Status:        "ready",
		ClientToken:   "ctkn_stub",
		CheckoutURL:   "https://checkout.stub.local/txn",
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// StubEmailProvider implements EmailProvider by logging the message instead
// of sending it. Used when APP_ENV=local.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", msg.ToEmail,
		"subject", msg.Subject,
	)
	return nil
}

// StubWebhookVerifier implements WebhookVerifier by always succeeding.
// Used when APP_ENV=local.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, signatureHeader string) error {
	s.logger.Info("stub: webhook Verify called",
		"payload_len", len(payload),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ CheckoutAPI = (*StubCheckoutAPI)(nil)
var _ EmailProvider = (*StubEmailProvider)(nil)
var _ WebhookVerifier = (*StubWebhookVerifier)(nil)
