package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/service"
	"tokoledger/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, "main-shop", 10)
	auth := NewAuthManager("unit-test-secret-0123456789abcdef", time.Hour, repo)
	return New(svc, auth, "http://localhost:5173")
}

func loginToken(t *testing.T, api *API, username, password string) string {
	t.Helper()
	rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d body=%s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return resp.AccessToken
}

// doRequest sends a request through the full middleware chain. Mutating
// requests automatically carry a valid CSRF token.
func doRequest(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost || method == http.MethodPatch || method == http.MethodPut {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
}

func TestEndpointsRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/products", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus token, got %d", rec.Code)
	}
}

func TestRecordSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prd-gula-01", Quantity: 2}},
		Payment: domain.PaymentSpec{
			Type:          domain.PaymentTypeFull,
			AmountCents:   3480000,
			PaymentMethod: "cash",
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	var created domain.SaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if created.Sale.TotalCents != 3480000 {
		t.Fatalf("expected total 3480000, got %d", created.Sale.TotalCents)
	}
	if created.Sale.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", created.Sale.PaymentStatus)
	}
	if created.Sale.StaffID != "staff" {
		t.Fatalf("expected staff id from token, got %q", created.Sale.StaffID)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/sales/"+created.Sale.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", rec.Code)
	}

	// Stock on the product card reflects the sale.
	rec = doRequest(t, api, http.MethodGet, "/api/v1/products/prd-gula-01", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var productResp struct {
		Product domain.Product `json:"product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &productResp); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if productResp.Product.Stock != 78 {
		t.Fatalf("expected stock 78, got %d", productResp.Product.Stock)
	}
}

func TestInsufficientStockReturns422(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prd-telur-01", Quantity: 9999}},
		Payment: domain.PaymentSpec{
			Type:          domain.PaymentTypeFull,
			AmountCents:   1,
			PaymentMethod: "cash",
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUnknownProductReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodGet, "/api/v1/products/prd-nope", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestInstallmentPaymentOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prd-mie-01", Quantity: 1}},
		Payment: domain.PaymentSpec{
			Type: domain.PaymentTypeInstallment,
			Installments: []domain.InstallmentInput{
				{AmountCents: 5000000, PaymentMethod: "cash"},
			},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var created domain.SaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Sale.OutstandingCents != 4800000 {
		t.Fatalf("expected outstanding 4800000, got %d", created.Sale.OutstandingCents)
	}

	rec = doRequest(t, api, http.MethodPost,
		fmt.Sprintf("/api/v1/sales/%s/payments", created.Sale.ID), token,
		domain.ApplyPaymentRequest{AmountCents: 4800000, PaymentMethod: "transfer", BankName: "BCA"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var settled domain.SaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &settled); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if settled.Sale.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Sale.PaymentStatus)
	}

	// Further payment on a settled sale is a business-rule violation.
	rec = doRequest(t, api, http.MethodPost,
		fmt.Sprintf("/api/v1/sales/%s/payments", created.Sale.ID), token,
		domain.ApplyPaymentRequest{AmountCents: 100, PaymentMethod: "cash"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestStaffCannotManagePurchaseOrders(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/purchase-orders", token, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-grosir-jaya",
		Items:      []domain.POItemInput{{ProductID: "prd-beras-01", Qty: 5}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/audit-logs", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff audit access, got %d", rec.Code)
	}
}

func TestPurchaseOrderLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "owner", "owner123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/purchase-orders", token, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-grosir-jaya",
		Items:      []domain.POItemInput{{ProductID: "prd-beras-01", Qty: 10, UnitCostCents: 6000000}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var created domain.PurchaseOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode po: %v", err)
	}
	poID := created.PurchaseOrder.ID

	rec = doRequest(t, api, http.MethodPost, "/api/v1/purchase-orders/"+poID+"/send", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on send, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/purchase-orders/"+poID+"/receive", token,
		domain.PurchaseOrderReceiveRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on receive, got %d body=%s", rec.Code, rec.Body.String())
	}
	var received domain.PurchaseOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &received); err != nil {
		t.Fatalf("decode po: %v", err)
	}
	if received.PurchaseOrder.Status != domain.POStatusReceived {
		t.Fatalf("expected received, got %s", received.PurchaseOrder.Status)
	}

	// Cancelling a received order is a lifecycle violation.
	rec = doRequest(t, api, http.MethodPost, "/api/v1/purchase-orders/"+poID+"/cancel", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestOfflineSyncEndpointIsCSRFExempt(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	payload, err := json.Marshal(domain.OfflineSyncRequest{
		Sales: []domain.OfflineSaleInput{{
			ClientTempID: "tablet-7-0042",
			Items:        []domain.SaleItemInput{{ProductID: "prd-teh-01", Quantity: 1}},
			Payment: domain.PaymentSpec{
				Type:          domain.PaymentTypeFull,
				AmountCents:   980000,
				PaymentMethod: "cash",
			},
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Deliberately no X-CSRF-Token header: offline devices sync before they
	// can fetch one.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/offline-sales", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp domain.OfflineSyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode sync response: %v", err)
	}
	if len(resp.Statuses) != 1 || resp.Statuses[0].Status != domain.SyncStatusSynced {
		t.Fatalf("expected synced status, got %+v", resp.Statuses)
	}
}

func TestStaffManagement(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := loginToken(t, api, "owner", "owner123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/users/staff", ownerToken, domain.StaffCreateRequest{
		Username: "kasir2",
		Password: "rahasia99",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	// The new account can log in straight away.
	newToken := loginToken(t, api, "kasir2", "rahasia99")
	rec = doRequest(t, api, http.MethodGet, "/api/v1/products", newToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for new staff, got %d", rec.Code)
	}

	// But staff cannot manage users.
	rec = doRequest(t, api, http.MethodGet, "/api/v1/users/staff", newToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestDailySummaryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prd-sabun-01", Quantity: 3}},
		Payment: domain.PaymentSpec{
			Type:          domain.PaymentTypeFull,
			AmountCents:   2220000,
			PaymentMethod: "qris",
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/reports/daily", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary domain.DailySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Sales != 1 || summary.RevenueCents != 2220000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "staff", "staff123")

	rec := doRequest(t, api, http.MethodPatch, "/api/v1/products", token, map[string]string{})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
