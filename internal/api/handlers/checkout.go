package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"devmint/internal/billing"
	"devmint/internal/checkout"
	"devmint/internal/core"
	"devmint/internal/external"
	"devmint/internal/types"
)

// CheckoutHandler exposes the checkout session manager over HTTP: the
// frontend calls these endpoints to open hosted checkouts and to read the
// plan catalog.
type CheckoutHandler struct {
	sessions *checkout.SessionManager
	catalog  *billing.Catalog
	logger   *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler.
func NewCheckoutHandler(sessions *checkout.SessionManager, catalog *billing.Catalog, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		sessions: sessions,
		catalog:  catalog,
		logger:   logger,
	}
}

// RegisterRoutes mounts the checkout endpoints.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout/subscription", h.CreateSubscriptionCheckout)
	r.Post("/checkout/donation", h.CreateDonationCheckout)
	r.Get("/checkout/prices", h.ListPrices)
}

type subscriptionCheckoutRequest struct {
	PriceID string `json:"price_id"`
	Email   string `json:"email,omitempty"`
}

type donationCheckoutRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	Email       string  `json:"email,omitempty"`
}

type checkoutSessionResponse struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
	ClientToken   string `json:"client_token,omitempty"`
}

// CreateSubscriptionCheckout opens a hosted checkout for a catalog plan
// price. The price must exist in the configured plan catalog.
func (h *CheckoutHandler) CreateSubscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	var req subscriptionCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.PriceID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"price_id is required",
			nil,
		))
		return
	}
	if _, ok := h.catalog.Lookup(req.PriceID); !ok {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"price_id is not a known plan price",
			nil,
			map[string]any{"price_id": req.PriceID},
		))
		return
	}

	session, err := h.sessions.OpenCheckout(r.Context(), checkout.CheckoutOptions{
		Items: []external.CheckoutItem{
			{PriceID: req.PriceID, Quantity: 1},
		},
		CustomerEmail: req.Email,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, checkoutSessionResponse{
		TransactionID: session.TransactionID,
		CheckoutURL:   session.CheckoutURL,
		ClientToken:   session.ClientToken,
	})
}

// CreateDonationCheckout opens a variable-amount donation checkout. Amounts
// below 1.00 USD are rejected before any provider traffic.
func (h *CheckoutHandler) CreateDonationCheckout(w http.ResponseWriter, r *http.Request) {
	var req donationCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.sessions.CreateDonationCheckout(r.Context(), req.Amount, req.Description, req.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, checkoutSessionResponse{
		TransactionID: session.TransactionID,
		CheckoutURL:   session.CheckoutURL,
		ClientToken:   session.ClientToken,
	})
}

type priceResponse struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	AmountCents  int64  `json:"amount_cents"`
	CurrencyCode string `json:"currency_code"`
	Interval     string `json:"interval,omitempty"`
	Plan         string `json:"plan,omitempty"`
	Cycle        string `json:"cycle,omitempty"`
	Donation     bool   `json:"donation,omitempty"`
}

// ListPrices returns the provider catalog snapshot annotated with the local
// plan mapping. Initializes the session manager lazily on first call.
func (h *CheckoutHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Initialize(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}

	prices := h.sessions.Prices()
	out := make([]priceResponse, 0, len(prices))
	for _, p := range prices {
		resp := priceResponse{
			ID:           p.ID,
			Description:  p.Description,
			AmountCents:  p.AmountCents,
			CurrencyCode: p.CurrencyCode,
			Interval:     p.Interval,
			Donation:     h.catalog.IsDonationPrice(p.ID),
		}
		if desc, ok := h.catalog.Lookup(p.ID); ok {
			resp.Plan = desc.Plan
			resp.Cycle = string(desc.Cycle)
		}
		out = append(out, resp)
	}

	core.JSON(w, r, http.StatusOK, out)
}
