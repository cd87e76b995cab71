package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"perfumaria/backend/internal/domain"
	"perfumaria/backend/internal/service"
	"perfumaria/backend/internal/store"
	"perfumaria/backend/internal/store/memory"
)

const testPIN = "482913"

// newTestAPI builds a full API over an in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWith(t, memory.New())
}

func newTestAPIWith(t *testing.T, kv store.KV) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := service.New(context.Background(), kv, service.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	confirm, err := NewConfirmer(testSecret, time.Minute, testPIN)
	if err != nil {
		t.Fatalf("new confirmer: %v", err)
	}
	return New(svc, confirm, []string{"http://shop.test"})
}

func do(t *testing.T, h http.Handler, method string, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type envelope[T any] struct {
	Data    T      `json:"data"`
	Warning string `json:"warning"`
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := do(t, h, http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	h := newTestAPI(t).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/clients", nil)
	req.Header.Set("Origin", "http://shop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	req.Header.Set("Access-Control-Request-Headers", confirmHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://shop.test" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}
}

func TestListAndCreateClients(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/clients?search=costa", nil)
	clients := decode[[]domain.Client](t, rec)
	if rec.Code != http.StatusOK || len(clients) != 1 || clients[0].ID != "4" {
		t.Fatalf("expected Beatriz Costa, got %d %+v", rec.Code, clients)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/clients", domain.ClientCreateRequest{Phone: "123"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["field"] != "name" {
		t.Fatalf("expected field name in error, got %v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/clients", domain.ClientCreateRequest{Name: "Helena Rocha"})
	created := decode[envelope[domain.Client]](t, rec)
	if rec.Code != http.StatusCreated || created.Data.ID == "" || created.Warning != "" {
		t.Fatalf("unexpected create response %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/products", map[string]any{"name": "X", "price_cents": 100, "sku": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	h := newTestAPI(t).Handler()
	body := `{"name":"` + strings.Repeat("a", (1<<20)+1024) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", rec.Code)
	}
}

func TestCreditSaleFlow(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/sales", domain.SaleCreateRequest{
		ClientID:      "3",
		PaymentMethod: "Fiado",
		Items:         []domain.SaleItem{{ProductID: "p6", Quantity: 2, UnitPriceCents: 10000}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	sale := decode[envelope[domain.SaleBalance]](t, rec).Data
	if sale.OutstandingCents != 20000 || sale.Status != domain.SaleStatusPending || sale.ClientName != "Carla Martins" {
		t.Fatalf("unexpected sale balance %+v", sale)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/payments", domain.PaymentCreateRequest{Amount: "150.00"})
	paid := decode[envelope[domain.SaleBalance]](t, rec).Data
	if rec.Code != http.StatusCreated || paid.OutstandingCents != 5000 || paid.Status != domain.SaleStatusPartial || paid.ClientName != "Carla Martins" {
		t.Fatalf("unexpected payment response %d %+v", rec.Code, paid)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/debts", nil)
	debts := decode[[]domain.ClientDebt](t, rec)
	found := false
	for _, d := range debts {
		if d.Client.ID == "3" {
			found = d.TotalDebtCents == 5000 && d.PendingSaleCount == 1
		}
	}
	if !found {
		t.Fatalf("expected client 3 to owe 50.00, got %+v", debts)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/clients/3/credit-sales", nil)
	if open := decode[[]domain.SaleBalance](t, rec); len(open) != 1 || open[0].Sale.ID != sale.Sale.ID {
		t.Fatalf("expected one open credit sale, got %+v", open)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+sale.Sale.ID, nil)
	if got := decode[domain.SaleBalance](t, rec); got.ClientName != "Carla Martins" {
		t.Fatalf("expected client name on sale detail, got %q", got.ClientName)
	}
}

func TestPaymentErrorsMapToStatus(t *testing.T) {
	h := newTestAPI(t).Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/sales/missing/payments", domain.PaymentCreateRequest{AmountCents: 100}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/sales/s1/payments", domain.PaymentCreateRequest{AmountCents: -5}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/sales", domain.SaleCreateRequest{ClientID: "1", PaymentMethod: "Pix"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}

func TestDeleteRequiresConfirmationToken(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := do(t, h, http.MethodDelete, "/api/v1/clients/4", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 plan, got %d", rec.Code)
	}
	plan := decode[domain.DeletePlan](t, rec)
	if plan.Token == "" || plan.Action != domain.ActionDeleteClient || !strings.Contains(plan.Summary, "3 sale(s)") {
		t.Fatalf("unexpected plan %+v", plan)
	}

	if rec := do(t, h, http.MethodDelete, "/api/v1/clients/5", nil, confirmHeader, plan.Token); rec.Code != http.StatusForbidden {
		t.Fatalf("expected token for another client to be refused, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/clients/4", nil, confirmHeader, plan.Token); rec.Code != http.StatusOK {
		t.Fatalf("expected delete to commit, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/clients/4", nil, confirmHeader, plan.Token); rec.Code != http.StatusForbidden {
		t.Fatalf("expected reused token to be refused, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/sales", nil)
	history := decode[[]domain.SaleBalance](t, rec)
	if len(history) != 6 {
		t.Fatalf("expected sales to survive client deletion, got %d", len(history))
	}

	if rec := do(t, h, http.MethodDelete, "/api/v1/products/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected plan for unknown product to be 404, got %d", rec.Code)
	}
}

func TestResetNeedsTokenAndPIN(t *testing.T) {
	h := newTestAPI(t).Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/clients", domain.ClientCreateRequest{Name: "Temporária"}); rec.Code != http.StatusCreated {
		t.Fatalf("create client: %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/reset", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 plan, got %d", rec.Code)
	}
	plan := decode[domain.DeletePlan](t, rec)

	rec = do(t, h, http.MethodPost, "/api/v1/reset", domain.ResetRequest{ConfirmToken: plan.Token, PIN: "000000"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected wrong PIN to be refused, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/reset", domain.ResetRequest{ConfirmToken: plan.Token, PIN: testPIN})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/clients", nil)
	if clients := decode[[]domain.Client](t, rec); len(clients) != 5 {
		t.Fatalf("expected seed clients after reset, got %d", len(clients))
	}
}

func TestResetPINRateLimitReturns429(t *testing.T) {
	h := newTestAPI(t).Handler()
	plan := decode[domain.DeletePlan](t, do(t, h, http.MethodPost, "/api/v1/reset", nil))

	for i := 0; i < 6; i++ {
		rec := do(t, h, http.MethodPost, "/api/v1/reset", domain.ResetRequest{ConfirmToken: plan.Token, PIN: "111111"})
		if i < 5 && rec.Code != http.StatusForbidden {
			t.Fatalf("attempt %d expected 403 before limit, got %d", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", rec.Code)
		}
	}
}

type brokenKV struct{ *memory.Store }

func (brokenKV) Save(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

func TestPersistenceFailureIsReportedAsWarning(t *testing.T) {
	h := newTestAPIWith(t, brokenKV{Store: memory.New()}).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/expenses", domain.ExpenseCreateRequest{Description: "Caixas", Amount: "12.50"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 despite failed save, got %d", rec.Code)
	}
	body := decode[envelope[domain.Expense]](t, rec)
	if body.Warning == "" || body.Data.AmountCents != 1250 {
		t.Fatalf("expected warning and data, got %+v", body)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("expected storage error text to stay out of the response")
	}
}

func TestDashboardAndAnalytics(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/dashboard", nil)
	summary := decode[domain.DashboardSummary](t, rec)
	if summary.NetProfitCents != summary.TotalRevenueCents-summary.TotalExpensesCents || summary.SaleCount != 6 {
		t.Fatalf("unexpected dashboard %+v", summary)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/analytics/monthly-revenue", nil)
	buckets := decode[[]domain.MonthlyRevenue](t, rec)
	if len(buckets) != 4 || buckets[0].Month != "mai." {
		t.Fatalf("unexpected buckets %+v", buckets)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/expenses/categories", nil)
	if cats := decode[[]string](t, rec); len(cats) != 6 {
		t.Fatalf("expected six categories, got %v", cats)
	}
}

func TestProfileUpdate(t *testing.T) {
	h := newTestAPI(t).Handler()

	if rec := do(t, h, http.MethodPut, "/api/v1/profile", domain.UserProfile{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodPut, "/api/v1/profile", domain.UserProfile{Name: "Ana Lúcia"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/profile", nil)
	if got := decode[domain.UserProfile](t, rec); got.Name != "Ana Lúcia" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
}
