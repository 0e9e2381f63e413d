package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api, http.MethodGet, "/healthz", "", nil)

	expected := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy":  "same-origin",
		"Access-Control-Allow-Origin": "http://localhost:5173",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("header %s: expected %q, got %q", header, want, got)
		}
	}
}

func TestPreflightRequestShortCircuits(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("expected CORS method header on preflight")
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)

	var last int
	for i := 0; i < 6; i++ {
		rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "owner",
			"password": "wrong-password",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "owner", "owner123")

	body := []byte(`{"name":"Garam","price_cents":400,"cost_price_cents":200,"initial_stock":5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", "forged-token")
	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with forged CSRF token, got %d", rec.Code)
	}
}

func TestCSRFTokenEndpointIssuesUsableToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "owner", "owner123")

	rec := doRequest(t, api, http.MethodGet, "/api/v1/auth/csrf-token", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if resp.CSRFToken == "" {
		t.Fatalf("expected csrf token in response")
	}

	body := []byte(`{"name":"Garam","price_cents":400,"cost_price_cents":200,"initial_stock":5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", resp.CSRFToken)
	recorder := httptest.NewRecorder()
	api.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201 with issued token, got %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "owner", "owner123")

	huge := strings.Repeat("x", 1<<20+1024)
	body := []byte(`{"name":"` + huge + `","price_cents":400}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)

	body := []byte(`{"username":"owner","password":"owner123","extra":"field"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}
}
