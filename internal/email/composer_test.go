package email

import (
	"strings"
	"testing"

	"devmint/internal/types"
)

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer("Devmint")
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}
	return c
}

func TestComposer_DonationThanks(t *testing.T) {
	c := newTestComposer(t)

	msg, err := c.Compose(types.PaymentNotification{
		Kind:          types.NotifyDonationThanks,
		CustomerEmail: "donor@example.com",
		Amount:        "12.34",
		CurrencyCode:  "USD",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if msg.ToEmail != "donor@example.com" {
		t.Errorf("unexpected recipient %q", msg.ToEmail)
	}
	if !strings.Contains(msg.Subject, "Thank you") {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.PlainBody, "Amount: 12.34 USD") {
		t.Errorf("expected amount in plain body, got %q", msg.PlainBody)
	}
	if !strings.Contains(msg.HTMLBody, "12.34 USD") {
		t.Errorf("expected amount in HTML body")
	}
}

func TestComposer_SubscriptionWelcome(t *testing.T) {
	c := newTestComposer(t)

	msg, err := c.Compose(types.PaymentNotification{
		Kind:          types.NotifySubscriptionWelcome,
		CustomerEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if !strings.Contains(msg.Subject, "Welcome") {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	// No amount on welcome emails.
	if strings.Contains(msg.PlainBody, "Amount:") {
		t.Errorf("welcome email must not show an amount, got %q", msg.PlainBody)
	}
	if msg.HTMLBody == "" || msg.PlainBody == "" {
		t.Error("expected both plain and HTML bodies")
	}
}

func TestComposer_PaymentReceipt(t *testing.T) {
	c := newTestComposer(t)

	msg, err := c.Compose(types.PaymentNotification{
		Kind:          types.NotifyPaymentReceipt,
		CustomerEmail: "buyer@example.com",
		Amount:        "500",
		CurrencyCode:  "USD",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !strings.Contains(msg.Subject, "receipt") {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
}

func TestComposer_MissingRecipient(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Compose(types.PaymentNotification{Kind: types.NotifyPaymentReceipt})
	if err == nil {
		t.Error("expected an error without a recipient")
	}
}

func TestComposer_UnknownKind(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Compose(types.PaymentNotification{
		Kind:          types.NotificationKind("sms_ping"),
		CustomerEmail: "buyer@example.com",
	})
	if err == nil {
		t.Error("expected unknown kinds to be rejected")
	}
}

func TestComposer_HTMLEscapesUntrustedInput(t *testing.T) {
	// The site name flows into the HTML template and must be escaped.
	c, err := NewComposer(`Dev<script>alert(1)</script>mint`)
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	msg, err := c.Compose(types.PaymentNotification{
		Kind:          types.NotifyDonationThanks,
		CustomerEmail: "donor@example.com",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if strings.Contains(msg.HTMLBody, "<script>") {
		t.Error("expected script tags to be escaped in HTML body")
	}
}
