// Package handlers contains the HTTP handler implementations for the Devmint
// payments API.
//
// The webhook handler in this file is NOT behind auth middleware -- it is
// called directly by the payment provider. Security comes from verifying the
// Paddle-Signature header: HMAC-SHA256 over the raw body with the shared
// signing secret, compared in constant time.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"

	"devmint/internal/billing"
	"devmint/internal/checkout"
	"devmint/internal/core"
	"devmint/internal/external"
	"devmint/internal/metrics"
	"devmint/internal/types"
)

// maxWebhookBodySize caps provider webhook payloads at 64 KB. Provider
// payloads are small JSON documents; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// ---------------------------------------------------------------------------
// Interfaces for webhook handler dependencies
// ---------------------------------------------------------------------------

// EventArchiver records verified webhook deliveries for audit and
// redelivery detection. Archive failures never block dispatch.
type EventArchiver interface {
	RecordEvent(ctx context.Context, eventID string, eventType string, occurredAt time.Time, payload []byte) (firstSeen bool, err error)
}

// NotificationEnqueuer hands accepted payment events to the email pipeline.
type NotificationEnqueuer interface {
	Publish(ctx context.Context, msg types.PaymentNotification) error
}

// ---------------------------------------------------------------------------
// Paddle Webhook Handler
// ---------------------------------------------------------------------------

// PaddleWebhookHandler handles asynchronous payment events from the
// provider. Signature verification strictly precedes parsing and dispatch;
// an unverified payload's fields are never read.
type PaddleWebhookHandler struct {
	verifier external.WebhookVerifier
	ledger   billing.Ledger
	catalog  *billing.Catalog
	archiver EventArchiver
	notifier NotificationEnqueuer
	metrics  metrics.IntakeMetrics
	logger   *slog.Logger

	dispatch map[string]func(ctx context.Context, evt *paddleEventEnvelope) error
}

// NewPaddleWebhookHandler creates a PaddleWebhookHandler with the provided
// dependencies. The archiver and notifier may be nil (local mode); their
// absence disables archiving and notifications but not dispatch.
func NewPaddleWebhookHandler(
	verifier external.WebhookVerifier,
	ledger billing.Ledger,
	catalog *billing.Catalog,
	archiver EventArchiver,
	notifier NotificationEnqueuer,
	intakeMetrics metrics.IntakeMetrics,
	logger *slog.Logger,
) *PaddleWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if intakeMetrics == nil {
		intakeMetrics = metrics.NopIntakeMetrics{}
	}

	h := &PaddleWebhookHandler{
		verifier: verifier,
		ledger:   ledger,
		catalog:  catalog,
		archiver: archiver,
		notifier: notifier,
		metrics:  intakeMetrics,
		logger:   logger,
	}

	h.dispatch = map[string]func(ctx context.Context, evt *paddleEventEnvelope) error{
		external.EventTransactionCreated:   h.handleTransactionCreated,
		external.EventTransactionCompleted: h.handleTransactionCompleted,
		external.EventSubscriptionCreated:  h.handleSubscriptionCreated,
		external.EventSubscriptionUpdated:  h.handleSubscriptionUpdated,
		external.EventSubscriptionCanceled: h.handleSubscriptionCanceled,
		external.EventSubscriptionPaused:   h.handleSubscriptionPaused,
		external.EventSubscriptionResumed:  h.handleSubscriptionResumed,
		external.EventCustomerCreated:      h.handleCustomerUpserted,
		external.EventCustomerUpdated:      h.handleCustomerUpserted,
	}

	return h
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from the
// checkout routes because webhook routes are public (no auth middleware).
func (h *PaddleWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/paddle", h.Handle)
}

// webhookAck is the success body the provider receives.
type webhookAck struct {
	Success bool `json:"success"`
}

// Handle processes one incoming provider webhook delivery.
//
//  1. Method gate: only POST is accepted.
//  2. Read the raw body (64 KB cap).
//  3. Require and verify the Paddle-Signature header.
//  4. Parse the event envelope.
//  5. Archive the verified event (best effort).
//  6. Dispatch by event type; unknown types are acknowledged.
//  7. 200 {"success":true} on success; 500 on dispatch failure so the
//     provider redelivers.
func (h *PaddleWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeMethodNotAllowed,
			"webhook endpoint accepts POST only",
			nil,
		))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Paddle-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(ctx, "missing Paddle-Signature header")
		h.metrics.SignatureFailure(ctx)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureMissing,
			"missing Paddle-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader); err != nil {
		// The signature value is deliberately absent from the log.
		h.logger.WarnContext(ctx, "webhook signature verification failed")
		h.metrics.SignatureFailure(ctx)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event paddleEventEnvelope
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(ctx, "failed to parse webhook event JSON",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON",
			err,
		))
		return
	}
	if event.EventType == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"webhook event is missing event_type",
			nil,
		))
		return
	}

	h.metrics.EventReceived(ctx, event.EventType)
	h.logger.InfoContext(ctx, "processing provider webhook event",
		"event_id", event.EventID,
		"event_type", event.EventType,
	)

	h.archiveEvent(ctx, &event, payload)

	handler, known := h.dispatch[event.EventType]
	if !known {
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.EventType,
		)
		h.metrics.DispatchOutcome(ctx, event.EventType, metrics.ResultIgnored, 0)
		core.JSON(w, r, http.StatusOK, webhookAck{Success: true})
		return
	}

	start := time.Now()
	err = h.runHandler(ctx, handler, &event)
	latency := time.Since(start)

	if err != nil {
		h.logger.ErrorContext(ctx, "webhook event processing failed",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err,
		)
		h.metrics.DispatchOutcome(ctx, event.EventType, metrics.ResultFailed, latency)
		// 500 so the provider redelivers; every ledger write is idempotent.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalDispatch,
			"webhook event processing failed",
			err,
		))
		return
	}

	h.metrics.DispatchOutcome(ctx, event.EventType, metrics.ResultProcessed, latency)
	core.JSON(w, r, http.StatusOK, webhookAck{Success: true})
}

// runHandler invokes an event handler with panic containment. A panicking
// handler is reported as a dispatch failure, not a crashed worker.
func (h *PaddleWebhookHandler) runHandler(
	ctx context.Context,
	handler func(ctx context.Context, evt *paddleEventEnvelope) error,
	evt *paddleEventEnvelope,
) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "panic in webhook event handler",
				"event_type", evt.EventType,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic in %s handler: %v", evt.EventType, rec)
		}
	}()
	return handler(ctx, evt)
}

// archiveEvent stores the verified delivery. Failures are logged and do not
// block dispatch.
func (h *PaddleWebhookHandler) archiveEvent(ctx context.Context, evt *paddleEventEnvelope, payload []byte) {
	if h.archiver == nil {
		return
	}
	if evt.EventID == "" {
		// Without an event ID there is no dedup key; archiving would make
		// every later ID-less delivery look like a redelivery.
		h.logger.WarnContext(ctx, "webhook event has no event_id, skipping archive",
			"event_type", evt.EventType,
		)
		return
	}
	occurredAt := evt.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	firstSeen, err := h.archiver.RecordEvent(ctx, evt.EventID, evt.EventType, occurredAt, payload)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to archive webhook event",
			"event_id", evt.EventID,
			"error", err,
		)
		return
	}
	if !firstSeen {
		h.logger.InfoContext(ctx, "webhook event is a redelivery",
			"event_id", evt.EventID,
		)
	}
}

// ---------------------------------------------------------------------------
// Event Handlers
// ---------------------------------------------------------------------------

// handleTransactionCreated logs the draft transaction. No ledger writes:
// money is only recorded when the transaction completes.
func (h *PaddleWebhookHandler) handleTransactionCreated(ctx context.Context, evt *paddleEventEnvelope) error {
	txn, err := evt.transaction()
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "transaction created",
		"transaction_id", txn.ID,
		"status", txn.Status,
	)
	return nil
}

// handleTransactionCompleted records a completed payment. The donation vs
// subscription-payment branch is decided purely by the planType marker in
// custom_data: the value "donation" takes the donation path, anything else
// (including absent custom_data) takes the subscription-payment path.
func (h *PaddleWebhookHandler) handleTransactionCompleted(ctx context.Context, evt *paddleEventEnvelope) error {
	txn, err := evt.transaction()
	if err != nil {
		return err
	}

	customData := txn.customDataStrings()
	amount := txn.Details.Totals.Total
	currency := txn.Details.Totals.CurrencyCode

	if customData[checkout.CustomDataPlanType] == "donation" {
		if err := h.ledger.RecordDonation(ctx, types.DonationRecord{
			TransactionID: txn.ID,
			Amount:        amount,
			CurrencyCode:  currency,
			CustomerEmail: txn.Customer.Email,
			CustomData:    customData,
		}); err != nil {
			return fmt.Errorf("RecordDonation: %w", err)
		}
		h.enqueueNotification(ctx, types.PaymentNotification{
			Kind:          types.NotifyDonationThanks,
			TransactionID: txn.ID,
			CustomerEmail: txn.Customer.Email,
			Amount:        amount,
			CurrencyCode:  currency,
			PlanKind:      types.PlanDonation,
		})
		return nil
	}

	planKind, cycle := h.resolvePlan(txn)
	if err := h.ledger.RecordSubscriptionPayment(ctx, types.SubscriptionPayment{
		TransactionID: txn.ID,
		Amount:        amount,
		CurrencyCode:  currency,
		CustomerEmail: txn.Customer.Email,
		PlanKind:      planKind,
		BillingCycle:  cycle,
		CustomData:    customData,
	}); err != nil {
		return fmt.Errorf("RecordSubscriptionPayment: %w", err)
	}
	h.enqueueNotification(ctx, types.PaymentNotification{
		Kind:          types.NotifyPaymentReceipt,
		TransactionID: txn.ID,
		CustomerEmail: txn.Customer.Email,
		Amount:        amount,
		CurrencyCode:  currency,
		PlanKind:      planKind,
	})
	return nil
}

func (h *PaddleWebhookHandler) handleSubscriptionCreated(ctx context.Context, evt *paddleEventEnvelope) error {
	sub, err := evt.subscription()
	if err != nil {
		return err
	}

	if err := h.ledger.ActivateSubscription(ctx, types.SubscriptionActivation{
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.customerEmail(),
		PriceID:        sub.firstPriceID(),
		Status:         mapSubscriptionStatus(sub.Status),
		NextBilledAt:   sub.NextBilledAt,
	}); err != nil {
		return fmt.Errorf("ActivateSubscription: %w", err)
	}

	h.enqueueNotification(ctx, types.PaymentNotification{
		Kind:           types.NotifySubscriptionWelcome,
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.customerEmail(),
		PlanKind:       types.PlanSubscription,
	})
	return nil
}

func (h *PaddleWebhookHandler) handleSubscriptionUpdated(ctx context.Context, evt *paddleEventEnvelope) error {
	sub, err := evt.subscription()
	if err != nil {
		return err
	}
	if err := h.ledger.UpdateSubscription(ctx, types.SubscriptionUpdate{
		SubscriptionID: sub.ID,
		Status:         mapSubscriptionStatus(sub.Status),
		NextBilledAt:   sub.NextBilledAt,
		PriceIDs:       sub.priceIDs(),
	}); err != nil {
		return fmt.Errorf("UpdateSubscription: %w", err)
	}
	return nil
}

func (h *PaddleWebhookHandler) handleSubscriptionCanceled(ctx context.Context, evt *paddleEventEnvelope) error {
	sub, err := evt.subscription()
	if err != nil {
		return err
	}
	if err := h.ledger.CancelSubscription(ctx, types.SubscriptionCancellation{
		SubscriptionID: sub.ID,
		CanceledAt:     sub.CanceledAt,
		Reason:         sub.cancellationReason(),
	}); err != nil {
		return fmt.Errorf("CancelSubscription: %w", err)
	}
	return nil
}

func (h *PaddleWebhookHandler) handleSubscriptionPaused(ctx context.Context, evt *paddleEventEnvelope) error {
	sub, err := evt.subscription()
	if err != nil {
		return err
	}
	if err := h.ledger.PauseSubscription(ctx, types.SubscriptionPause{
		SubscriptionID: sub.ID,
		PausedAt:       sub.PausedAt,
	}); err != nil {
		return fmt.Errorf("PauseSubscription: %w", err)
	}
	return nil
}

func (h *PaddleWebhookHandler) handleSubscriptionResumed(ctx context.Context, evt *paddleEventEnvelope) error {
	sub, err := evt.subscription()
	if err != nil {
		return err
	}
	resumedAt := evt.occurredAtOrNil()
	if err := h.ledger.ResumeSubscription(ctx, types.SubscriptionResume{
		SubscriptionID: sub.ID,
		ResumedAt:      resumedAt,
	}); err != nil {
		return fmt.Errorf("ResumeSubscription: %w", err)
	}
	return nil
}

// handleCustomerUpserted serves both customer.created and customer.updated;
// the ledger write is the same upsert either way.
func (h *PaddleWebhookHandler) handleCustomerUpserted(ctx context.Context, evt *paddleEventEnvelope) error {
	cust, err := evt.customer()
	if err != nil {
		return err
	}
	if err := h.ledger.UpsertCustomer(ctx, types.CustomerRecord{
		CustomerID: cust.ID,
		Email:      cust.Email,
		Name:       cust.Name,
		OccurredAt: evt.occurredAtOrNil(),
	}); err != nil {
		return fmt.Errorf("UpsertCustomer: %w", err)
	}
	return nil
}

// enqueueNotification publishes to the email pipeline. Queue failures are
// logged, not surfaced: an email outage must not make the provider retry a
// payment event that is already in the ledger.
func (h *PaddleWebhookHandler) enqueueNotification(ctx context.Context, msg types.PaymentNotification) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Publish(ctx, msg); err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue payment notification",
			"kind", string(msg.Kind),
			"transaction_id", msg.TransactionID,
			"subscription_id", msg.SubscriptionID,
			"error", err,
		)
	}
}

// resolvePlan maps the transaction's first catalog price onto the plan
// catalog. Unknown prices default to a monthly subscription so the payment
// is still recorded.
func (h *PaddleWebhookHandler) resolvePlan(txn *paddleTransactionObj) (types.PlanKind, types.BillingCycle) {
	if h.catalog != nil {
		for _, item := range txn.Items {
			if desc, ok := h.catalog.Lookup(item.Price.ID); ok {
				return types.PlanSubscription, desc.Cycle
			}
		}
	}
	return types.PlanSubscription, types.CycleMonthly
}

// ---------------------------------------------------------------------------
// Provider Event Parsing
// ---------------------------------------------------------------------------

// paddleEventEnvelope is a minimal representation of a provider webhook
// event, tailored to the fields needed for routing and processing. The data
// object is decoded lazily per event type.
type paddleEventEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func (e *paddleEventEnvelope) occurredAtOrNil() *time.Time {
	if e.OccurredAt.IsZero() {
		return nil
	}
	t := e.OccurredAt.UTC()
	return &t
}

// paddleTransactionObj carries the transaction fields the intake reads.
type paddleTransactionObj struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	CustomData map[string]any `json:"custom_data"`
	Customer   struct {
		Email string `json:"email"`
	} `json:"customer"`
	Details struct {
		Totals struct {
			Total        string `json:"total"`
			CurrencyCode string `json:"currency_code"`
		} `json:"totals"`
	} `json:"details"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

// customDataStrings flattens custom_data to string values. The provider
// round-trips whatever the checkout attached, so values may arrive as JSON
// numbers.
func (t *paddleTransactionObj) customDataStrings() map[string]string {
	if len(t.CustomData) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.CustomData))
	for k, v := range t.CustomData {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// paddleSubscriptionObj carries the subscription fields the intake reads.
type paddleSubscriptionObj struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	NextBilledAt *time.Time     `json:"next_billed_at"`
	CanceledAt   *time.Time     `json:"canceled_at"`
	PausedAt     *time.Time     `json:"paused_at"`
	CustomData   map[string]any `json:"custom_data"`
	Customer     struct {
		Email string `json:"email"`
	} `json:"customer"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
}

func (s *paddleSubscriptionObj) customerEmail() string {
	return s.Customer.Email
}

func (s *paddleSubscriptionObj) firstPriceID() string {
	if len(s.Items) > 0 {
		return s.Items[0].Price.ID
	}
	return ""
}

func (s *paddleSubscriptionObj) priceIDs() []string {
	ids := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		ids = append(ids, item.Price.ID)
	}
	return ids
}

func (s *paddleSubscriptionObj) cancellationReason() string {
	if s.ScheduledChange != nil {
		return s.ScheduledChange.Action
	}
	return ""
}

// paddleCustomerObj carries the customer fields the intake reads.
type paddleCustomerObj struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (e *paddleEventEnvelope) transaction() (*paddleTransactionObj, error) {
	var txn paddleTransactionObj
	if err := json.Unmarshal(e.Data, &txn); err != nil {
		return nil, fmt.Errorf("%s: malformed transaction data: %w", e.EventType, err)
	}
	if txn.ID == "" {
		return nil, fmt.Errorf("%s: transaction data is missing id", e.EventType)
	}
	return &txn, nil
}

func (e *paddleEventEnvelope) subscription() (*paddleSubscriptionObj, error) {
	var sub paddleSubscriptionObj
	if err := json.Unmarshal(e.Data, &sub); err != nil {
		return nil, fmt.Errorf("%s: malformed subscription data: %w", e.EventType, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%s: subscription data is missing id", e.EventType)
	}
	return &sub, nil
}

func (e *paddleEventEnvelope) customer() (*paddleCustomerObj, error) {
	var cust paddleCustomerObj
	if err := json.Unmarshal(e.Data, &cust); err != nil {
		return nil, fmt.Errorf("%s: malformed customer data: %w", e.EventType, err)
	}
	if cust.ID == "" {
		return nil, fmt.Errorf("%s: customer data is missing id", e.EventType)
	}
	return &cust, nil
}

// mapSubscriptionStatus converts the provider's status string to the domain
// enum, passing unknown values through unchanged.
func mapSubscriptionStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubStatusActive
	case "trialing":
		return types.SubStatusTrialing
	case "past_due":
		return types.SubStatusPastDue
	case "paused":
		return types.SubStatusPaused
	case "canceled":
		return types.SubStatusCanceled
	default:
		return types.SubscriptionStatus(status)
	}
}
