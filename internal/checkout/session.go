// Package checkout manages the lifecycle of the payment provider's hosted
// checkout. The SessionManager owns the provider client handle: it is
// constructed explicitly, injected into its consumers, and is the only
// component allowed to create or discard the handle. Host code observes
// outcomes through the Callbacks surface instead of provider-specific types.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/singleflight"

	"devmint/internal/external"
	"devmint/internal/types"
)

// Correlation metadata keys attached to every checkout transaction. The
// webhook intake reads the same keys back from transaction.completed events,
// so the marker must survive the provider round-trip unchanged.
const (
	CustomDataPlanType       = "planType"
	CustomDataDonationAmount = "donationAmount"

	planTypeDonation = "donation"
)

// donationMinimumCents is the smallest accepted donation (1.00 USD).
const donationMinimumCents = 100

// ClientFactory constructs a fresh provider client handle. The manager calls
// it once per successful bootstrap; ForceReinitialize discards the previous
// handle and calls it again.
type ClientFactory func() (external.CheckoutAPI, error)

// SuccessResult is delivered to OnSuccess when a checkout completes.
type SuccessResult struct {
	TransactionID string
	PlanKind      types.PlanKind
	CustomData    map[string]string
}

// Callbacks is the host-facing outcome surface. Nil callbacks are allowed
// and treated as no-ops.
type Callbacks struct {
	OnSuccess func(result SuccessResult)
	OnError   func(err error)
}

// Options configures a SessionManager.
type Options struct {
	// DonationPriceID identifies the catalog price used as the carrier for
	// variable-amount donations. Its product ID is resolved during
	// initialization.
	DonationPriceID string

	// PlanPriceIDs lists the subscription price IDs the site sells. The
	// bootstrap cross-checks them against the provider's catalog and warns
	// for any that are missing.
	PlanPriceIDs []string

	// SuccessURL is where the provider redirects after a completed
	// checkout.
	SuccessURL string

	// CurrencyCode for donation line items. Defaults to USD.
	CurrencyCode string
}

// CheckoutOptions describes one checkout to open.
type CheckoutOptions struct {
	Items         []external.CheckoutItem
	CustomerEmail string
	CustomData    map[string]string
}

// Session is the handle returned from an opened checkout. The frontend uses
// the checkout URL (or client token) to resume the provider's hosted flow.
type Session struct {
	TransactionID string
	CheckoutURL   string
	ClientToken   string
}

// SessionManager drives the provider client through its lifecycle:
//
//	uninitialized -> initializing -> ready
//	                 initializing -> init-failed (ForceReinitialize to recover)
//
// Initialization is idempotent and deduplicated: any number of concurrent
// callers share a single in-flight bootstrap.
type SessionManager struct {
	factory   ClientFactory
	opts      Options
	callbacks Callbacks
	logger    *slog.Logger

	group singleflight.Group

	mu                sync.Mutex
	state             types.CheckoutState
	client            external.CheckoutAPI
	prices            []external.Price
	donationProductID string
	lastInitErr       error
}

// NewSessionManager creates a SessionManager in the uninitialized state.
// No provider traffic happens until Initialize or the first checkout.
func NewSessionManager(factory ClientFactory, opts Options, callbacks Callbacks, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CurrencyCode == "" {
		opts.CurrencyCode = "USD"
	}
	return &SessionManager{
		factory:   factory,
		opts:      opts,
		callbacks: callbacks,
		logger:    logger,
		state:     types.CheckoutUninitialized,
	}
}

// State returns the current lifecycle state.
func (m *SessionManager) State() types.CheckoutState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsReady reports whether the manager holds a usable provider handle.
func (m *SessionManager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == types.CheckoutReady && m.client != nil
}

// Initialize brings the manager to the ready state. Calling it when already
// ready is a no-op. Concurrent callers join the same in-flight bootstrap and
// receive its result. A failed bootstrap is sticky: the manager stays in
// init-failed and returns the original error until ForceReinitialize.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case types.CheckoutReady:
		if m.client != nil {
			m.mu.Unlock()
			return nil
		}
	case types.CheckoutInitFailed:
		err := m.lastInitErr
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do("bootstrap", func() (any, error) {
		return nil, m.bootstrap(ctx)
	})
	return err
}

// bootstrap discards any stale handle, constructs a fresh provider client,
// and proves it with a credentialed catalog fetch. Runs at most once at a
// time (callers are funneled through the singleflight group).
func (m *SessionManager) bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.state == types.CheckoutReady && m.client != nil {
		m.mu.Unlock()
		return nil
	}
	m.state = types.CheckoutInitializing
	m.client = nil
	m.prices = nil
	m.donationProductID = ""
	m.mu.Unlock()

	client, err := m.factory()
	if err != nil {
		return m.failInit("provider client construction failed", err)
	}

	prices, err := client.ListPrices(ctx)
	if err != nil {
		return m.failInit("provider catalog fetch failed", err)
	}

	donationProductID := ""
	known := make(map[string]bool, len(prices))
	for _, p := range prices {
		known[p.ID] = true
		if p.ID == m.opts.DonationPriceID {
			donationProductID = p.ProductID
		}
	}
	for _, id := range m.opts.PlanPriceIDs {
		if !known[id] {
			m.logger.Warn("configured plan price missing from provider catalog",
				"price_id", id,
			)
		}
	}

	m.mu.Lock()
	m.client = client
	m.prices = prices
	m.donationProductID = donationProductID
	m.state = types.CheckoutReady
	m.mu.Unlock()

	m.logger.Info("checkout session manager ready",
		"price_count", len(prices),
	)
	return nil
}

func (m *SessionManager) failInit(msg string, err error) error {
	appErr := types.NewAppError(types.ErrCodeCheckoutInitFailed, msg, err)

	m.mu.Lock()
	m.state = types.CheckoutInitFailed
	m.client = nil
	m.lastInitErr = appErr
	m.mu.Unlock()

	m.logger.Error("checkout initialization failed",
		"error", err.Error(),
	)
	return appErr
}

// ForceReinitialize tears down the current handle and state and runs a fresh
// bootstrap. This is the only recovery path out of init-failed.
func (m *SessionManager) ForceReinitialize(ctx context.Context) error {
	m.mu.Lock()
	m.state = types.CheckoutUninitialized
	m.client = nil
	m.prices = nil
	m.donationProductID = ""
	m.lastInitErr = nil
	m.mu.Unlock()

	m.group.Forget("bootstrap")
	return m.Initialize(ctx)
}

// OpenCheckout opens a hosted checkout transaction with the provider. The
// manager initializes itself lazily if needed, validates the options, and
// injects the planType correlation marker when the caller did not set one.
// Provider rejections are reported through OnError and returned.
func (m *SessionManager) OpenCheckout(ctx context.Context, opts CheckoutOptions) (*Session, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}

	if len(opts.Items) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"checkout requires at least one line item",
			nil,
		)
	}

	customData := make(map[string]string, len(opts.CustomData)+1)
	for k, v := range opts.CustomData {
		customData[k] = v
	}
	if customData[CustomDataPlanType] == "" {
		customData[CustomDataPlanType] = string(types.PlanSubscription)
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return nil, types.NewAppError(
			types.ErrCodeCheckoutNotReady,
			"checkout session manager has no provider handle",
			nil,
		)
	}

	txn, err := client.CreateCheckoutTransaction(ctx, external.CheckoutRequest{
		Items:         opts.Items,
		CustomerEmail: opts.CustomerEmail,
		CustomData:    customData,
		SuccessURL:    m.opts.SuccessURL,
	})
	if err != nil {
		appErr := types.NewAppError(
			types.ErrCodeCheckoutRejected,
			"provider rejected the checkout transaction",
			err,
		)
		m.reportError(appErr)
		return nil, appErr
	}

	m.logger.InfoContext(ctx, "checkout opened",
		"transaction_id", txn.TransactionID,
		"plan_type", customData[CustomDataPlanType],
	)

	return &Session{
		TransactionID: txn.TransactionID,
		CheckoutURL:   txn.CheckoutURL,
		ClientToken:   txn.ClientToken,
	}, nil
}

// CreateDonationCheckout opens a checkout for a variable-amount donation.
// Amounts below 1.00 USD are rejected before any provider traffic. The
// dollar amount is converted to a cents-priced custom line item carried on
// the donation product, and the correlation metadata is tagged so the
// webhook intake and completion callbacks can tell donations apart.
// customerEmail is optional; when set, the hosted checkout is prefilled
// with it.
func (m *SessionManager) CreateDonationCheckout(ctx context.Context, amountDollars float64, description, customerEmail string) (*Session, error) {
	cents := int64(math.Round(amountDollars * 100))
	if cents < donationMinimumCents {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationDonationMinimum,
			"donation amount must be at least 1.00 USD",
			nil,
			map[string]any{"amount": amountDollars},
		)
	}

	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	productID := m.donationProductID
	m.mu.Unlock()
	if productID == "" {
		return nil, types.NewAppError(
			types.ErrCodeCheckoutNotReady,
			fmt.Sprintf("donation price %s is not in the provider catalog", m.opts.DonationPriceID),
			nil,
		)
	}

	if description == "" {
		description = "Donation"
	}

	return m.OpenCheckout(ctx, CheckoutOptions{
		Items: []external.CheckoutItem{
			{
				Quantity: 1,
				CustomPrice: &external.CustomPrice{
					ProductID:    productID,
					AmountCents:  cents,
					CurrencyCode: m.opts.CurrencyCode,
					Description:  description,
				},
			},
		},
		CustomerEmail: customerEmail,
		CustomData: map[string]string{
			CustomDataPlanType:       planTypeDonation,
			CustomDataDonationAmount: fmt.Sprintf("%.2f", float64(cents)/100),
		},
	})
}

// ProviderEvent is one checkout lifecycle event emitted by the provider
// during an active session.
type ProviderEvent struct {
	Kind          string
	TransactionID string
	CustomData    map[string]string
	Message       string // provider error detail, set for checkout.error
}

// HandleProviderEvent demultiplexes a checkout lifecycle event onto the
// callback surface.
//
//   - checkout.loaded: informational, logged only.
//   - checkout.completed: OnSuccess with the transaction ID and a
//     donation/subscription distinction taken from the planType marker.
//   - checkout.closed: user abandonment, not an error.
//   - checkout.error: OnError with the provider's message.
//   - anything else: logged and ignored.
func (m *SessionManager) HandleProviderEvent(evt ProviderEvent) {
	switch evt.Kind {
	case external.EventCheckoutLoaded:
		m.logger.Info("checkout loaded",
			"transaction_id", evt.TransactionID,
		)

	case external.EventCheckoutCompleted:
		planKind := types.PlanSubscription
		if evt.CustomData[CustomDataPlanType] == planTypeDonation {
			planKind = types.PlanDonation
		}
		m.logger.Info("checkout completed",
			"transaction_id", evt.TransactionID,
			"plan_kind", string(planKind),
		)
		if m.callbacks.OnSuccess != nil {
			m.callbacks.OnSuccess(SuccessResult{
				TransactionID: evt.TransactionID,
				PlanKind:      planKind,
				CustomData:    evt.CustomData,
			})
		}

	case external.EventCheckoutClosed:
		m.logger.Info("checkout closed by user",
			"transaction_id", evt.TransactionID,
		)

	case external.EventCheckoutError:
		m.reportError(types.NewAppError(
			types.ErrCodeCheckoutProviderFail,
			fmt.Sprintf("checkout failed: %s", evt.Message),
			nil,
		))

	default:
		m.logger.Info("ignoring unknown checkout event",
			"kind", evt.Kind,
		)
	}
}

// Prices returns the catalog snapshot taken during the last successful
// bootstrap.
func (m *SessionManager) Prices() []external.Price {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]external.Price, len(m.prices))
	copy(out, m.prices)
	return out
}

func (m *SessionManager) reportError(err error) {
	m.logger.Error("checkout error",
		"error", err.Error(),
	)
	if m.callbacks.OnError != nil {
		m.callbacks.OnError(err)
	}
}
