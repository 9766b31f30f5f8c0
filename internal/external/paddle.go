package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"devmint/internal/types"
)

// Paddle API base URLs. The environment is selected from configuration;
// BaseURL in PaddleClientConfig overrides both (tests).
const (
	paddleAPIBaseProduction = "https://api.paddle.com"
	paddleAPIBaseSandbox    = "https://sandbox-api.paddle.com"
)

// PaddleClientConfig holds the configuration for creating a PaddleClient.
type PaddleClientConfig struct {
	APIKey      types.SecretString
	Environment string // "sandbox" or "production"
	BaseURL     string // Override for testing; defaults from Environment
	Logger      *slog.Logger
}

// PaddleClient implements CheckoutAPI by making direct HTTP calls to the
// Paddle Billing REST API through BaseClient, so every call inherits the
// platform's resilience infrastructure (circuit breaker, retries, error
// mapping) and remains straightforward to test with httptest.
type PaddleClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewPaddleClient creates a new PaddleClient. The httpClient timeout should
// be on the order of 20 seconds; checkout creation is a user-facing call.
func NewPaddleClient(httpClient *http.Client, cfg PaddleClientConfig) *PaddleClient {
	base := NewBaseClient(
		httpClient,
		"paddle",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Devmint/1.0",
	)
	return NewPaddleClientWithBase(base, cfg)
}

// NewPaddleClientWithBase creates a PaddleClient with a pre-configured
// BaseClient. Useful in tests that need control over retry behavior.
func NewPaddleClientWithBase(base *BaseClient, cfg PaddleClientConfig) *PaddleClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Environment == "production" {
			baseURL = paddleAPIBaseProduction
		} else {
			baseURL = paddleAPIBaseSandbox
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PaddleClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// CheckoutAPI Implementation
// ---------------------------------------------------------------------------

// ListPrices fetches all active catalog prices from Paddle. A successful
// response proves the API key is valid and the provider is reachable, which
// is why the session manager uses it as its initialization handshake.
func (p *PaddleClient) ListPrices(ctx context.Context) ([]Price, error) {
	params := url.Values{}
	params.Set("status", "active")

	resp, err := p.doGet(ctx, "/prices", params)
	if err != nil {
		return nil, p.wrapPaddleError("ListPrices", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp, "ListPrices")
	}

	var listResp paddlePriceList
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Paddle prices response",
			err,
		)
	}

	prices := make([]Price, 0, len(listResp.Data))
	for _, pp := range listResp.Data {
		prices = append(prices, p.mapPaddlePrice(&pp))
	}
	return prices, nil
}

// CreateCheckoutTransaction opens a transaction with Paddle in checkout
// mode and returns the handle the frontend needs to resume the hosted
// checkout flow.
func (p *PaddleClient) CreateCheckoutTransaction(ctx context.Context, req CheckoutRequest) (*CheckoutTransaction, error) {
	body := paddleTransactionRequest{
		Items:      make([]paddleTransactionItem, 0, len(req.Items)),
		CustomData: req.CustomData,
	}
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		ti := paddleTransactionItem{Quantity: quantity}
		if item.CustomPrice != nil {
			ti.Price = &paddleInlinePrice{
				Description: item.CustomPrice.Description,
				ProductID:   item.CustomPrice.ProductID,
				UnitPrice: paddleMoney{
					Amount:       fmt.Sprintf("%d", item.CustomPrice.AmountCents),
					CurrencyCode: item.CustomPrice.CurrencyCode,
				},
			}
		} else {
			ti.PriceID = item.PriceID
		}
		body.Items = append(body.Items, ti)
	}

	if req.CustomerEmail != "" {
		body.Customer = &paddleCustomerRef{Email: req.CustomerEmail}
	}
	if req.SuccessURL != "" {
		body.Checkout = &paddleCheckoutSettings{SuccessURL: req.SuccessURL}
	}

	resp, err := p.doPost(ctx, "/transactions", body)
	if err != nil {
		return nil, p.wrapPaddleError("CreateCheckoutTransaction", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, p.handleErrorResponse(resp, "CreateCheckoutTransaction")
	}

	var created paddleTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Paddle transaction response",
			err,
		)
	}

	txn := &CheckoutTransaction{
		TransactionID: created.Data.ID,
		Status:        created.Data.Status,
		CreatedAt:     created.Data.CreatedAt,
	}
	if created.Data.Checkout != nil {
		txn.CheckoutURL = created.Data.Checkout.URL
		txn.ClientToken = created.Data.Checkout.ClientToken
	}
	return txn, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (p *PaddleClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := p.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	p.setAuthHeaders(req)

	return p.base.Do(req)
}

func (p *PaddleClient) doPost(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to encode Paddle request body",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	p.setAuthHeaders(req)

	return p.base.Do(req)
}

func (p *PaddleClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey.Unmask())
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// paddleErrorResponse represents the JSON error envelope returned by the
// Paddle API.
type paddleErrorResponse struct {
	Error paddleErrorBody `json:"error"`
}

type paddleErrorBody struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
	DocURL string `json:"documentation_url"`
}

// handleErrorResponse reads a Paddle error response and maps it to a
// types.AppError.
func (p *PaddleClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamPaddle,
			fmt.Sprintf("%s: Paddle returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var paddleErr paddleErrorResponse
	if jsonErr := json.Unmarshal(body, &paddleErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamPaddle,
			fmt.Sprintf("%s: Paddle returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Paddle rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Paddle server error: %s", operation, paddleErr.Error.Detail),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamPaddle,
			fmt.Sprintf("%s: Paddle error (%d): %s", operation, resp.StatusCode, paddleErr.Error.Detail),
			nil,
			map[string]any{
				"paddle_code": paddleErr.Error.Code,
				"paddle_type": paddleErr.Error.Type,
			},
		)
	}
}

// wrapPaddleError wraps a BaseClient transport error with operation context.
func (p *PaddleClient) wrapPaddleError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamPaddle,
		fmt.Sprintf("%s: Paddle request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Paddle Wire Types (for JSON serialization)
// ---------------------------------------------------------------------------

type paddleMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type paddleInlinePrice struct {
	Description string      `json:"description"`
	ProductID   string      `json:"product_id"`
	UnitPrice   paddleMoney `json:"unit_price"`
}

type paddleTransactionItem struct {
	PriceID  string             `json:"price_id,omitempty"`
	Price    *paddleInlinePrice `json:"price,omitempty"`
	Quantity int                `json:"quantity"`
}

type paddleCustomerRef struct {
	Email string `json:"email"`
}

type paddleCheckoutSettings struct {
	SuccessURL string `json:"success_url,omitempty"`
}

type paddleTransactionRequest struct {
	Items      []paddleTransactionItem `json:"items"`
	Customer   *paddleCustomerRef      `json:"customer,omitempty"`
	CustomData map[string]string       `json:"custom_data,omitempty"`
	Checkout   *paddleCheckoutSettings `json:"checkout,omitempty"`
}

type paddleCheckoutInfo struct {
	URL         string `json:"url"`
	ClientToken string `json:"client_token"`
}

type paddleTransaction struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Checkout  *paddleCheckoutInfo `json:"checkout"`
	CreatedAt time.Time           `json:"created_at"`
}

type paddleTransactionResponse struct {
	Data paddleTransaction `json:"data"`
}

type paddlePrice struct {
	ID           string             `json:"id"`
	ProductID    string             `json:"product_id"`
	Description  string             `json:"description"`
	UnitPrice    paddleMoney        `json:"unit_price"`
	BillingCycle *paddleBillingTerm `json:"billing_cycle"`
}

type paddleBillingTerm struct {
	Interval  string `json:"interval"`
	Frequency int    `json:"frequency"`
}

type paddlePriceList struct {
	Data []paddlePrice `json:"data"`
}

// mapPaddlePrice converts a Paddle price to the provider-agnostic Price.
func (p *PaddleClient) mapPaddlePrice(pp *paddlePrice) Price {
	price := Price{
		ID:           pp.ID,
		ProductID:    pp.ProductID,
		Description:  pp.Description,
		CurrencyCode: pp.UnitPrice.CurrencyCode,
	}
	// Paddle serializes amounts as strings of the smallest currency unit.
	cents, err := strconv.ParseInt(pp.UnitPrice.Amount, 10, 64)
	if err != nil {
		p.logger.Warn("malformed unit price amount in Paddle price, zeroing",
			"price_id", pp.ID,
			"amount", pp.UnitPrice.Amount,
		)
		cents = 0
	}
	price.AmountCents = cents
	if pp.BillingCycle != nil {
		price.Interval = pp.BillingCycle.Interval
	}
	return price
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// PaddleVerifier implements WebhookVerifier for the provider's signature
// scheme: the Paddle-Signature header carries the hex-encoded HMAC-SHA256
// of the raw request body, keyed with the webhook signing secret.
type PaddleVerifier struct {
	secret types.SecretString
}

// NewPaddleVerifier creates a verifier bound to the given signing secret.
func NewPaddleVerifier(secret types.SecretString) *PaddleVerifier {
	return &PaddleVerifier{secret: secret}
}

// Verify recomputes the HMAC over the payload and compares it against the
// header value in constant time. Malformed headers (odd length, non-hex
// characters) fail closed as invalid signatures. The header value itself is
// never included in errors or logs.
func (v *PaddleVerifier) Verify(payload []byte, signatureHeader string) error {
	provided, err := hex.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature is not valid hex",
			nil,
		)
	}

	mac := hmac.New(sha256.New, []byte(v.secret.Unmask()))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature does not match payload",
			nil,
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ CheckoutAPI = (*PaddleClient)(nil)
var _ WebhookVerifier = (*PaddleVerifier)(nil)
