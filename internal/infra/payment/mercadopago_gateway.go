package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"course-platform-payments/internal/config"
	"course-platform-payments/internal/domain/ports/adapter"
)

const mercadoPagoBase = "https://api.mercadopago.com"

// MercadoPagoGateway implements adapter.ProviderGateway against the hosted
// checkout-preference API. Auth is a static access token; webhooks already
// carry final status, so no capture step exists.
type MercadoPagoGateway struct {
	accessToken string
	baseURL     string
	successURL  string
	failureURL  string
	client      *http.Client
}

var _ adapter.ProviderGateway = (*MercadoPagoGateway)(nil)

func NewMercadoPagoGateway(cfg config.MercadoPagoConfig) *MercadoPagoGateway {
	return &MercadoPagoGateway{
		accessToken: cfg.AccessToken,
		baseURL:     mercadoPagoBase,
		successURL:  cfg.SuccessURL,
		failureURL:  cfg.FailureURL,
		client:      &http.Client{Timeout: 20 * time.Second},
	}
}

func (g *MercadoPagoGateway) Name() string { return "mercadopago" }

func (g *MercadoPagoGateway) RequiresCapture() bool { return false }

type mpPreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreateOrder creates a checkout preference. The invoice id travels as
// external_reference and the custom id inside metadata; the provider copies
// both onto the resulting payment object, which is how they survive to the
// webhook side.
func (g *MercadoPagoGateway) CreateOrder(ctx context.Context, quote adapter.PriceQuote, invoiceID, customID string, contact adapter.BuyerContact) (adapter.CreatedOrder, error) {
	unitPrice, _ := quote.Amount.Round(2).Float64()
	payload := map[string]interface{}{
		"items": []map[string]interface{}{
			{
				"title":       invoiceID,
				"quantity":    1,
				"unit_price":  unitPrice,
				"currency_id": strings.ToUpper(quote.Currency),
			},
		},
		"external_reference": invoiceID,
		"metadata": map[string]string{
			"custom_id": customID,
		},
		"back_urls": map[string]string{
			"success": g.successURL,
			"failure": g.failureURL,
		},
		"auto_return": "approved",
	}
	if contact.Email != "" {
		payload["payer"] = map[string]string{"email": contact.Email}
	}

	var pref mpPreferenceResponse
	if err := g.doJSON(ctx, http.MethodPost, "/checkout/preferences", payload, &pref); err != nil {
		return adapter.CreatedOrder{}, err
	}
	if pref.InitPoint == "" {
		return adapter.CreatedOrder{}, &adapter.GatewayError{Provider: "mercadopago", StatusCode: http.StatusOK, Body: "preference response carried no init_point"}
	}
	return adapter.CreatedOrder{OrderID: pref.ID, RedirectURL: pref.InitPoint}, nil
}

type mpPaymentResponse struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
	CurrencyID        string `json:"currency_id"`
	TransactionAmount float64 `json:"transaction_amount"`
	Metadata          struct {
		CustomID string `json:"custom_id"`
	} `json:"metadata"`
	Order struct {
		ID int64 `json:"id"`
	} `json:"order"`
}

type mpMerchantOrderResponse struct {
	ID           int64  `json:"id"`
	PreferenceID string `json:"preference_id"`
}

type mpPaymentSearchResponse struct {
	Results []mpPaymentResponse `json:"results"`
}

// GetOrder fetches the authoritative payment object the webhook pointed at
// and resolves it back to the preference id checkout stored, via the
// merchant order. The sweeper passes a preference id instead of a payment
// id; those are resolved through the payment search endpoint first.
func (g *MercadoPagoGateway) GetOrder(ctx context.Context, paymentID string) (adapter.OrderSnapshot, error) {
	var pay mpPaymentResponse
	if isPreferenceID(paymentID) {
		var search mpPaymentSearchResponse
		path := "/v1/payments/search?sort=date_created&criteria=desc&preference_id=" + url.QueryEscape(paymentID)
		if err := g.doJSON(ctx, http.MethodGet, path, nil, &search); err != nil {
			return adapter.OrderSnapshot{}, err
		}
		if len(search.Results) == 0 {
			// No payment attempt yet; report the order as still pending.
			return adapter.OrderSnapshot{OrderID: paymentID, Status: adapter.OrderStatusPending}, nil
		}
		pay = search.Results[0]
	} else if err := g.doJSON(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &pay); err != nil {
		return adapter.OrderSnapshot{}, err
	}

	snap := adapter.OrderSnapshot{
		Status:    mapMercadoPagoStatus(pay.Status),
		InvoiceID: pay.ExternalReference,
		CustomID:  pay.Metadata.CustomID,
		Currency:  pay.CurrencyID,
		Amount:    decimal.NewFromFloat(pay.TransactionAmount),
	}
	if pay.Order.ID != 0 {
		var mo mpMerchantOrderResponse
		if err := g.doJSON(ctx, http.MethodGet, fmt.Sprintf("/merchant_orders/%d", pay.Order.ID), nil, &mo); err != nil {
			return adapter.OrderSnapshot{}, err
		}
		snap.OrderID = mo.PreferenceID
	}
	return snap, nil
}

// Capture is a no-op: the provider settles approved payments itself and the
// webhook status is already final.
func (g *MercadoPagoGateway) Capture(ctx context.Context, orderID string) (adapter.CaptureResult, error) {
	return adapter.CaptureResult{Completed: true}, nil
}

func (g *MercadoPagoGateway) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("mercadopago request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mercadopago response read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &adapter.GatewayError{Provider: "mercadopago", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("mercadopago response decode: %w, body: %s", err, string(raw))
		}
	}
	return nil
}

// isPreferenceID distinguishes preference ids ("{collector}-{uuid}") from
// the all-numeric payment ids webhooks carry.
func isPreferenceID(id string) bool {
	return strings.ContainsAny(id, "-abcdefghijklmnopqrstuvwxyz")
}

func mapMercadoPagoStatus(s string) adapter.OrderStatus {
	switch s {
	case "approved":
		return adapter.OrderStatusCompleted
	case "rejected":
		return adapter.OrderStatusDeclined
	case "cancelled", "refunded", "charged_back":
		return adapter.OrderStatusCancelled
	default: // pending, in_process, authorized
		return adapter.OrderStatusPending
	}
}
