//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/adapter"
	"course-platform-payments/internal/usecase"
)

const testJWTSecret = "test-secret"

// --- Mock use cases ---

type mockCheckoutUC struct {
	CheckoutFunc func(ctx context.Context, req usecase.CheckoutRequest) (usecase.CheckoutResult, error)
	LastRequest  usecase.CheckoutRequest
}

func (m *mockCheckoutUC) Checkout(ctx context.Context, req usecase.CheckoutRequest) (usecase.CheckoutResult, error) {
	m.LastRequest = req
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, req)
	}
	return usecase.CheckoutResult{RedirectURL: "https://provider.example/pay", PaymentID: "pay-1"}, nil
}

type mockReconcileUC struct {
	ReconcileFunc func(ctx context.Context, provider string, n adapter.WebhookNotification) (usecase.ReconcileResult, error)
	Calls         int
	LastProvider  string
	LastOrderID   string
}

func (m *mockReconcileUC) Reconcile(ctx context.Context, provider string, n adapter.WebhookNotification) (usecase.ReconcileResult, error) {
	m.Calls++
	m.LastProvider = provider
	m.LastOrderID = n.OrderID
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, provider, n)
	}
	return usecase.ReconcileResult{Outcome: usecase.ReconcileIgnored}, nil
}

func (m *mockReconcileUC) ReconcileOrder(ctx context.Context, provider, orderID string) (usecase.ReconcileResult, error) {
	return usecase.ReconcileResult{Outcome: usecase.ReconcileIgnored}, nil
}

func newTestRouter(checkout *mockCheckoutUC, reconcile *mockReconcileUC) http.Handler {
	nop := zerolog.Nop()
	return NewServer(checkout, reconcile, testJWTSecret, &nop).Router(5 * time.Second)
}

func buyerToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

// --- Checkout route ---

func TestCheckoutHandler(t *testing.T) {
	body := `{"product_type":"course","product_ref":"go-basics","currency":"USD","provider":"paypal"}`

	t.Run("missing token is unauthorized", func(t *testing.T) {
		router := newTestRouter(&mockCheckoutUC{}, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		router := newTestRouter(&mockCheckoutUC{}, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("token subject becomes the buyer id", func(t *testing.T) {
		// --- Arrange ---
		checkout := &mockCheckoutUC{}
		router := newTestRouter(checkout, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+buyerToken(t, "buyer-9"))
		rr := httptest.NewRecorder()

		// --- Act ---
		router.ServeHTTP(rr, req)

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if checkout.LastRequest.BuyerID != "buyer-9" {
			t.Errorf("expected buyer id from the token subject, got %q", checkout.LastRequest.BuyerID)
		}
		var resp struct {
			RedirectURL string `json:"redirect_url"`
			PaymentID   string `json:"payment_id"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.RedirectURL == "" || resp.PaymentID != "pay-1" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("coupon rejection maps to 422 with the reason", func(t *testing.T) {
		checkout := &mockCheckoutUC{
			CheckoutFunc: func(ctx context.Context, req usecase.CheckoutRequest) (usecase.CheckoutResult, error) {
				return usecase.CheckoutResult{}, &usecase.CouponRejectedError{Reason: "expired"}
			},
		}
		router := newTestRouter(checkout, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+buyerToken(t, "buyer-9"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rr.Code)
		}
		var resp struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Error != "coupon_rejected" || resp.Reason != "expired" {
			t.Errorf("unexpected error body: %+v", resp)
		}
	})

	t.Run("unknown product maps to 404", func(t *testing.T) {
		checkout := &mockCheckoutUC{
			CheckoutFunc: func(ctx context.Context, req usecase.CheckoutRequest) (usecase.CheckoutResult, error) {
				return usecase.CheckoutResult{}, domain.ErrProductNotFound
			},
		}
		router := newTestRouter(checkout, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+buyerToken(t, "buyer-9"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("order creation failure maps to 502", func(t *testing.T) {
		checkout := &mockCheckoutUC{
			CheckoutFunc: func(ctx context.Context, req usecase.CheckoutRequest) (usecase.CheckoutResult, error) {
				return usecase.CheckoutResult{}, domain.ErrOrderCreateFailed
			},
		}
		router := newTestRouter(checkout, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+buyerToken(t, "buyer-9"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rr.Code)
		}
	})
}

// --- Webhook routes ---

func TestPayPalWebhookHandler(t *testing.T) {
	t.Run("extracts the order id from the event resource", func(t *testing.T) {
		// --- Arrange ---
		reconcile := &mockReconcileUC{
			ReconcileFunc: func(ctx context.Context, provider string, n adapter.WebhookNotification) (usecase.ReconcileResult, error) {
				return usecase.ReconcileResult{Outcome: usecase.ReconcileTransitioned, Status: model.PaymentStatusApproved}, nil
			},
		}
		router := newTestRouter(&mockCheckoutUC{}, reconcile)
		body := `{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"o-9"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()

		// --- Act ---
		router.ServeHTTP(rr, req)

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if reconcile.LastProvider != "paypal" || reconcile.LastOrderID != "o-9" {
			t.Errorf("unexpected reconcile call: provider=%q order=%q", reconcile.LastProvider, reconcile.LastOrderID)
		}
	})

	t.Run("capture events use the related order id", func(t *testing.T) {
		reconcile := &mockReconcileUC{}
		router := newTestRouter(&mockCheckoutUC{}, reconcile)
		body := `{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap-1","supplementary_data":{"related_ids":{"order_id":"o-9"}}}}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if reconcile.LastOrderID != "o-9" {
			t.Errorf("expected the related order id, got %q", reconcile.LastOrderID)
		}
	})

	t.Run("reconcile error is a 502 so the provider retries", func(t *testing.T) {
		reconcile := &mockReconcileUC{
			ReconcileFunc: func(ctx context.Context, provider string, n adapter.WebhookNotification) (usecase.ReconcileResult, error) {
				return usecase.ReconcileResult{}, errors.New("authoritative fetch failed")
			},
		}
		router := newTestRouter(&mockCheckoutUC{}, reconcile)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(`{"resource":{"id":"o-9"}}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rr.Code)
		}
	})

	t.Run("ignored outcome is still acknowledged with 200", func(t *testing.T) {
		router := newTestRouter(&mockCheckoutUC{}, &mockReconcileUC{})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(`{"resource":{"id":"o-9"}}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("ignored notifications must be acknowledged; got %d", rr.Code)
		}
	})
}

func TestMercadoPagoWebhookHandler(t *testing.T) {
	t.Run("payment topic from the body reaches the reconciler", func(t *testing.T) {
		reconcile := &mockReconcileUC{}
		router := newTestRouter(&mockCheckoutUC{}, reconcile)
		body := `{"type":"payment","data":{"id":"777"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if reconcile.LastProvider != "mercadopago" || reconcile.LastOrderID != "777" {
			t.Errorf("unexpected reconcile call: provider=%q order=%q", reconcile.LastProvider, reconcile.LastOrderID)
		}
	})

	t.Run("query-string notifications are supported", func(t *testing.T) {
		reconcile := &mockReconcileUC{}
		router := newTestRouter(&mockCheckoutUC{}, reconcile)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago?type=payment&data.id=777", bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if reconcile.LastOrderID != "777" {
			t.Errorf("expected the query-string payment id, got %q", reconcile.LastOrderID)
		}
	})

	t.Run("non-payment topics are acknowledged without processing", func(t *testing.T) {
		reconcile := &mockReconcileUC{}
		router := newTestRouter(&mockCheckoutUC{}, reconcile)
		body := `{"type":"merchant_order","data":{"id":"555"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
		if reconcile.Calls != 0 {
			t.Error("merchant_order topics must not reach the reconciler")
		}
	})
}

func TestHealthRoute(t *testing.T) {
	router := newTestRouter(&mockCheckoutUC{}, &mockReconcileUC{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
