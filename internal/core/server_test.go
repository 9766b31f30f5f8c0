package core

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"devmint/internal/config"
	"devmint/internal/types"
)

func TestNewServer_RequiresConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewServer(nil, logger); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewServer_RequiresLogger(t *testing.T) {
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestMountRoutes_HealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Result().StatusCode)
		}
	}
}

func TestMountRoutes_InvokesRegistrars(t *testing.T) {
	srv := newTestServer(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"pong": "true"})
		})
	})
	srv.MountRoutes()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("registered route status = %d, want 200", w.Result().StatusCode)
	}
}

// TestMountRoutes_MiddlewareChain exercises the full chain end to end: a
// panicking domain handler should be recovered, logged, and answered with
// the standard error envelope carrying a request ID.
func TestMountRoutes_MiddlewareChain(t *testing.T) {
	srv := newTestServer(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Post("/api/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("route panic")
		})
	})
	srv.MountRoutes()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/boom", nil)
	r.Header.Set("X-Request-Id", "req-chain-test")
	srv.Handler().ServeHTTP(w, r)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-Id"); got != "req-chain-test" {
		t.Errorf("X-Request-Id = %q, want echoed incoming ID", got)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q, want %q", body.Error.Code, types.ErrCodeInternalUnexpected)
	}
	if body.Error.RequestID != "req-chain-test" {
		t.Errorf("request_id = %q, want %q", body.Error.RequestID, "req-chain-test")
	}
}
