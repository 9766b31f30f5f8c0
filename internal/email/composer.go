// Package email renders the transactional emails sent after payment events:
// the donation thank-you, the subscription welcome, and the payment receipt.
package email

import (
	"bytes"
	"fmt"
	"html/template"

	"devmint/internal/external"
	"devmint/internal/types"
)

// Composer renders a PaymentNotification into a ready-to-send EmailMessage.
// Templates are parsed once at construction.
type Composer struct {
	siteName string
	htmlTmpl *template.Template
}

// NewComposer creates a Composer branded with the given site name.
func NewComposer(siteName string) (*Composer, error) {
	if siteName == "" {
		siteName = "Devmint"
	}
	tmpl, err := template.New("email").Parse(htmlBody)
	if err != nil {
		return nil, fmt.Errorf("email: failed to parse body template: %w", err)
	}
	return &Composer{
		siteName: siteName,
		htmlTmpl: tmpl,
	}, nil
}

// templateData feeds the shared HTML body template.
type templateData struct {
	SiteName string
	Heading  string
	Body     string
	Amount   string
}

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a2e;">
  <h2>{{.Heading}}</h2>
  <p>{{.Body}}</p>
  {{if .Amount}}<p><strong>Amount:</strong> {{.Amount}}</p>{{end}}
  <p>&mdash; The {{.SiteName}} team</p>
</body>
</html>`

// Compose builds the email for a notification. Unknown notification kinds
// are an error; the worker treats them as permanent failures.
func (c *Composer) Compose(msg types.PaymentNotification) (external.EmailMessage, error) {
	if msg.CustomerEmail == "" {
		return external.EmailMessage{}, fmt.Errorf("email: notification %s has no recipient", msg.NotificationID)
	}

	amount := ""
	if msg.Amount != "" {
		amount = msg.Amount
		if msg.CurrencyCode != "" {
			amount = fmt.Sprintf("%s %s", msg.Amount, msg.CurrencyCode)
		}
	}

	var subject, heading, body string
	switch msg.Kind {
	case types.NotifyDonationThanks:
		subject = fmt.Sprintf("Thank you for supporting %s", c.siteName)
		heading = "Thank you!"
		body = fmt.Sprintf("Your donation to %s was received. Contributions like yours keep the project going.", c.siteName)

	case types.NotifySubscriptionWelcome:
		subject = fmt.Sprintf("Welcome to %s", c.siteName)
		heading = "Your subscription is active"
		body = fmt.Sprintf("Your %s subscription is now active. You can manage it anytime from your account page.", c.siteName)

	case types.NotifyPaymentReceipt:
		subject = fmt.Sprintf("%s payment receipt", c.siteName)
		heading = "Payment received"
		body = "We received your subscription payment. This email is your receipt."

	default:
		return external.EmailMessage{}, fmt.Errorf("email: unknown notification kind %q", msg.Kind)
	}

	plain := fmt.Sprintf("%s\n\n%s\n", heading, body)
	if amount != "" {
		plain += fmt.Sprintf("\nAmount: %s\n", amount)
	}

	var htmlBuf bytes.Buffer
	if err := c.htmlTmpl.Execute(&htmlBuf, templateData{
		SiteName: c.siteName,
		Heading:  heading,
		Body:     body,
		Amount:   amount,
	}); err != nil {
		return external.EmailMessage{}, fmt.Errorf("email: failed to render body: %w", err)
	}

	return external.EmailMessage{
		ToEmail:   msg.CustomerEmail,
		Subject:   subject,
		PlainBody: plain,
		HTMLBody:  htmlBuf.String(),
	}, nil
}
