package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/adapter"
	"course-platform-payments/internal/infra/logging"
	"course-platform-payments/internal/infra/metrics"
	"course-platform-payments/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type checkoutRequest struct {
	ProductType    string `json:"product_type"`
	ProductRef     string `json:"product_ref"`
	Currency       string `json:"currency"`
	Months         int    `json:"months,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	BillingPeriod  string `json:"billing_period,omitempty"`
	CouponCode     string `json:"coupon_code,omitempty"`
	Provider       string `json:"provider"`
	BuyerEmail     string `json:"buyer_email,omitempty"`
}

type checkoutResponse struct {
	RedirectURL string `json:"redirect_url,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	Granted     bool   `json:"granted,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}

	buyerID := logging.BuyerID(ctx)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
		return
	}

	result, err := s.checkoutUC.Checkout(ctx, usecase.CheckoutRequest{
		BuyerID:        buyerID,
		BuyerEmail:     req.BuyerEmail,
		ProductType:    intent.ProductType(req.ProductType),
		ProductRef:     req.ProductRef,
		Currency:       req.Currency,
		Months:         req.Months,
		OrganizationID: req.OrganizationID,
		BillingPeriod:  intent.BillingPeriod(req.BillingPeriod),
		CouponCode:     req.CouponCode,
		Provider:       req.Provider,
	})
	if err != nil {
		var rejected *usecase.CouponRejectedError
		switch {
		case errors.As(err, &rejected):
			metrics.IncCheckout("coupon_rejected")
			writeError(w, http.StatusUnprocessableEntity, "coupon_rejected", rejected.Reason)
		case errors.Is(err, domain.ErrInvalidArgument):
			metrics.IncCheckout("failed")
			writeError(w, http.StatusBadRequest, "invalid_request", "")
		case errors.Is(err, domain.ErrProductNotFound):
			metrics.IncCheckout("failed")
			writeError(w, http.StatusNotFound, "product_not_found", "")
		case errors.Is(err, domain.ErrNoExchangeRate):
			metrics.IncCheckout("failed")
			writeError(w, http.StatusServiceUnavailable, "pricing_unavailable", "")
		case errors.Is(err, domain.ErrOrderCreateFailed):
			metrics.IncCheckout("failed")
			writeError(w, http.StatusBadGateway, "order_create_failed", "")
		default:
			l.Error().Err(err).Msg("checkout failed")
			metrics.IncCheckout("failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}

	if result.Granted {
		metrics.IncCheckout("free_access")
	} else {
		metrics.IncCheckout("redirected")
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		RedirectURL: result.RedirectURL,
		PaymentID:   result.PaymentID,
		Granted:     result.Granted,
	})
}

// paypalEvent is the slice of the webhook envelope this service reads. For
// capture events the order id lives under supplementary_data, for order
// events it is the resource id itself.
type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (s *Server) handlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}

	var ev paypalEvent
	_ = json.Unmarshal(body, &ev)
	orderID := ev.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = ev.Resource.ID
	}

	s.reconcile(w, r, "paypal", adapter.WebhookNotification{
		Headers: flattenHeaders(r.Header),
		Body:    body,
		OrderID: orderID,
	})
}

// mercadoPagoEvent covers both the query-string and JSON body notification
// shapes the provider sends.
type mercadoPagoEvent struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (s *Server) handleMercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}

	var ev mercadoPagoEvent
	_ = json.Unmarshal(body, &ev)

	topic := ev.Type
	if topic == "" {
		topic = r.URL.Query().Get("type")
	}
	if topic == "" {
		topic = r.URL.Query().Get("topic")
	}
	paymentID := ev.Data.ID
	if paymentID == "" {
		paymentID = r.URL.Query().Get("data.id")
	}

	// Only payment notifications matter; merchant_order and plan topics are
	// acknowledged without processing.
	if topic != "payment" {
		metrics.IncWebhook("mercadopago", "ignored")
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	}

	s.reconcile(w, r, "mercadopago", adapter.WebhookNotification{
		Headers: flattenHeaders(r.Header),
		Body:    body,
		OrderID: paymentID,
	})
}

// reconcile runs the use case and translates its outcome to HTTP. Anything
// the use case handled is a 200 so the provider stops retrying; only a
// returned error (authoritative fetch, capture or storage failure) is a 5xx.
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request, provider string, n adapter.WebhookNotification) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	result, err := s.reconcileUC.Reconcile(ctx, provider, n)
	if err != nil {
		l.Error().Err(err).Str("provider", provider).Str("order_id", n.OrderID).Msg("webhook reconcile failed; provider will retry")
		metrics.IncWebhook(provider, "error")
		writeError(w, http.StatusBadGateway, "reconcile_failed", "")
		return
	}

	switch result.Outcome {
	case usecase.ReconcileTransitioned:
		metrics.IncWebhook(provider, "transitioned")
		metrics.IncPayment(provider, string(result.Status))
		if result.Status == model.PaymentStatusApproved {
			amount, _ := result.Amount.Float64()
			metrics.AddPaymentRevenue(result.Currency, amount)
		}
	case usecase.ReconcileAlreadyTerminal:
		metrics.IncWebhook(provider, "duplicate")
	case usecase.ReconcileAnomaly:
		metrics.IncWebhook(provider, "anomaly")
	default:
		metrics.IncWebhook(provider, "ignored")
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": outcomeLabel(result.Outcome)})
}

func outcomeLabel(o usecase.ReconcileOutcome) string {
	switch o {
	case usecase.ReconcileTransitioned:
		return "transitioned"
	case usecase.ReconcileAlreadyTerminal:
		return "duplicate"
	case usecase.ReconcileAnomaly:
		return "anomaly"
	default:
		return "ignored"
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	resp := struct {
		Error  string `json:"error"`
		Reason string `json:"reason,omitempty"`
	}{Error: code, Reason: reason}
	writeJSON(w, status, resp)
}
