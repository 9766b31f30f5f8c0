package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"devmint/internal/types"
)

// ---------------------------------------------------------------- //
// JSON helper tests
// ---------------------------------------------------------------- //

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	data := APIResponse{Data: map[string]string{"name": "test"}}
	JSON(w, r, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	dataMap, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data to be a map, got %T", body.Data)
	}
	if dataMap["name"] != "test" {
		t.Errorf("expected name=test, got %v", dataMap["name"])
	}
}

func TestJSON_Created(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	JSON(w, r, http.StatusCreated, map[string]string{"id": "txn_123"})

	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Result().StatusCode)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-marshal-fail"))

	// Channels cannot be marshalled to JSON.
	JSON(w, r, http.StatusOK, make(chan int))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected fallback status 500, got %d", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode fallback response: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected code %q, got %q", types.ErrCodeInternalUnexpected, body.Error.Code)
	}
	if body.Error.RequestID != "req-marshal-fail" {
		t.Errorf("expected request_id to be propagated, got %q", body.Error.RequestID)
	}
}

// ---------------------------------------------------------------- //
// Error helper tests
// ---------------------------------------------------------------- //

func TestError_AppErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		code       types.ErrorCode
		wantStatus int
	}{
		{"validation", types.ErrCodeValidationMissingField, http.StatusBadRequest},
		{"signature missing", types.ErrCodeWebhookSignatureMissing, http.StatusBadRequest},
		{"signature invalid", types.ErrCodeWebhookSignatureInvalid, http.StatusUnauthorized},
		{"method", types.ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{"checkout", types.ErrCodeCheckoutRejected, http.StatusBadGateway},
		{"upstream", types.ErrCodeUpstreamPaddle, http.StatusBadGateway},
		{"internal", types.ErrCodeInternalDB, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r = r.WithContext(types.WithRequestID(r.Context(), "req-123"))

			Error(w, r, types.NewAppError(tc.code, "boom", nil))

			resp := w.Result()
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}

			var body APIErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error.Code != string(tc.code) {
				t.Errorf("code = %q, want %q", body.Error.Code, tc.code)
			}
			if body.Error.RequestID != "req-123" {
				t.Errorf("request_id = %q, want %q", body.Error.RequestID, "req-123")
			}
		})
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	inner := types.NewAppError(types.ErrCodeUpstreamRateLimited, "provider throttled", nil)
	Error(w, r, fmt.Errorf("calling provider: %w", inner))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeUpstreamRateLimited) {
		t.Errorf("code = %q, want wrapped AppError code", body.Error.Code)
	}
}

func TestError_GenericErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	Error(w, r, errors.New("pq: permission denied for table ledger"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q, want %q", body.Error.Code, types.ErrCodeInternalUnexpected)
	}
	if strings.Contains(body.Error.Message, "permission denied") {
		t.Error("internal error details must not leak to the client")
	}
}

func TestError_AppErrorDetailsForwarded(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	appErr := types.NewAppErrorWithDetails(
		types.ErrCodeValidationDonationMinimum,
		"donation amount below minimum",
		nil,
		map[string]any{"minimum": "1.00"},
	)
	Error(w, r, appErr)

	var body APIErrorResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Details["minimum"] != "1.00" {
		t.Errorf("details.minimum = %v, want %q", body.Error.Details["minimum"], "1.00")
	}
}

// ---------------------------------------------------------------- //
// DecodeJSON tests
// ---------------------------------------------------------------- //

type decodeTarget struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

func decodeErr(t *testing.T, err error) *types.AppError {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	return appErr
}

func TestDecodeJSON_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name": "pro", "amount": 500}`))

	var dst decodeTarget
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if dst.Name != "pro" || dst.Amount != 500 {
		t.Errorf("decoded = %+v, want name=pro amount=500", dst)
	}
}

func TestDecodeJSON_MalformedSyntax(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name": `))

	var dst decodeTarget
	appErr := decodeErr(t, DecodeJSON(w, r, &dst))
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidJSON)
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name": "pro", "extra": true}`))

	var dst decodeTarget
	appErr := decodeErr(t, DecodeJSON(w, r, &dst))
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidJSON)
	}
	if !strings.Contains(appErr.Message, "unknown field") {
		t.Errorf("message should mention unknown field, got %q", appErr.Message)
	}
}

func TestDecodeJSON_WrongType(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": "not-a-number"}`))

	var dst decodeTarget
	appErr := decodeErr(t, DecodeJSON(w, r, &dst))
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidJSON)
	}
	if appErr.Details["field"] != "amount" {
		t.Errorf("details.field = %v, want %q", appErr.Details["field"], "amount")
	}
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

	var dst decodeTarget
	appErr := decodeErr(t, DecodeJSON(w, r, &dst))
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidJSON)
	}
	if !strings.Contains(appErr.Message, "empty") {
		t.Errorf("message should mention empty body, got %q", appErr.Message)
	}
}

func TestDecodeJSON_TrailingData(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name": "a"}{"name": "b"}`))

	var dst decodeTarget
	appErr := decodeErr(t, DecodeJSON(w, r, &dst))
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidJSON)
	}
	if !strings.Contains(appErr.Message, "single JSON object") {
		t.Errorf("message should mention single object constraint, got %q", appErr.Message)
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	w := httptest.NewRecorder()

	// Build a payload just over the 1 MB limit.
	big := `{"name": "` + strings.Repeat("x", maxRequestBodySize+10) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var dst decodeTarget
	appErr := decodeErr(t, DecodeJSON(w, r, &dst))
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidJSON)
	}
	if !strings.Contains(appErr.Message, "1MB") {
		t.Errorf("message should mention the size limit, got %q", appErr.Message)
	}
}
