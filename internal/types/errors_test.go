package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error
// interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies the "code: message" format of Error().
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationDonationMinimum,
		Message: "Donation amount must be at least 1.00",
	}

	expected := "validation_donation_below_minimum: Donation amount must be at least 1.00"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorUnwrap verifies the error chain support via Unwrap.
func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := &AppError{
		Code:    ErrCodeInternalDB,
		Message: "failed to record donation",
		Err:     underlying,
	}

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() returned unexpected error: got %v, want %v", appErr.Unwrap(), underlying)
	}
}

// TestAppErrorUnwrapNil verifies Unwrap returns nil when no underlying error
// exists.
func TestAppErrorUnwrapNil(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeCheckoutNotReady,
		Message: "checkout client is not initialized",
	}

	if appErr.Unwrap() != nil {
		t.Errorf("Unwrap() should return nil when Err is nil, got %v", appErr.Unwrap())
	}
}

// TestAppErrorErrorsAs verifies that errors.As extracts AppError from a
// wrapped chain.
func TestAppErrorErrorsAs(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeUpstreamPaddle,
		Message: "provider request failed",
	}
	wrappedErr := fmt.Errorf("handler failed: %w", appErr)

	var extracted *AppError
	if !errors.As(wrappedErr, &extracted) {
		t.Fatal("errors.As should extract *AppError from the chain")
	}
	if extracted.Code != ErrCodeUpstreamPaddle {
		t.Errorf("extracted code = %q, want %q", extracted.Code, ErrCodeUpstreamPaddle)
	}
}

// TestErrorCodeHTTPStatus exercises the code-family to status mapping.
func TestErrorCodeHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationDonationMinimum, http.StatusBadRequest},
		{ErrCodeWebhookSignatureMissing, http.StatusBadRequest},
		{ErrCodeWebhookSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrCodeCheckoutInitFailed, http.StatusBadGateway},
		{ErrCodeCheckoutNotReady, http.StatusBadGateway},
		{ErrCodeCheckoutRejected, http.StatusBadGateway},
		{ErrCodeUpstreamPaddle, http.StatusBadGateway},
		{ErrCodeUpstreamEmail, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalDispatch, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_unrecognized"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

// TestNewAppErrorWithDetails verifies that structured details are carried.
func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(
		ErrCodeValidationDonationMinimum,
		"donation below minimum",
		nil,
		map[string]any{"minimum_cents": 100},
	)

	if appErr.Details["minimum_cents"] != 100 {
		t.Errorf("Details[minimum_cents] = %v, want 100", appErr.Details["minimum_cents"])
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want 400", appErr.HTTPStatus())
	}
}
