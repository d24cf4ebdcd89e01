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
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"course-platform-payments/internal/config"
	"course-platform-payments/internal/domain/ports/adapter"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"

	// tokenExpirySkew keeps us from racing the provider clock: a cached
	// token is reused only while now+skew is still inside its lifetime.
	tokenExpirySkew = 60 * time.Second
)

// PayPalGateway implements adapter.ProviderGateway using direct HTTP calls.
// Authentication is a client-credentials bearer token cached process-wide;
// a stale or revoked token simply fails on the next call and triggers a
// fresh exchange.
type PayPalGateway struct {
	clientID     string
	clientSecret string
	baseURL      string
	brandName    string
	returnURL    string
	cancelURL    string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refresh   singleflight.Group
}

var _ adapter.ProviderGateway = (*PayPalGateway)(nil)

func NewPayPalGateway(cfg config.PayPalConfig) *PayPalGateway {
	baseURL := paypalLiveBase
	if cfg.Sandbox {
		baseURL = paypalSandboxBase
	}
	return &PayPalGateway{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      baseURL,
		brandName:    cfg.BrandName,
		returnURL:    cfg.ReturnURL,
		cancelURL:    cfg.CancelURL,
		client:       &http.Client{Timeout: 20 * time.Second},
	}
}

func (g *PayPalGateway) Name() string { return "paypal" }

func (g *PayPalGateway) RequiresCapture() bool { return true }

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// getAccessToken returns the cached bearer token while it has more than the
// skew left to live, otherwise performs one client-credentials exchange.
// Concurrent callers share a single exchange via singleflight.
func (g *PayPalGateway) getAccessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.token != "" && time.Now().Add(tokenExpirySkew).Before(g.expiresAt) {
		token := g.token
		g.mu.Unlock()
		return token, nil
	}
	g.mu.Unlock()

	v, err, _ := g.refresh.Do("token", func() (interface{}, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(g.clientID, g.clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("paypal token exchange: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("paypal token exchange read: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &adapter.GatewayError{Provider: "paypal", StatusCode: resp.StatusCode, Body: string(body)}
		}

		var tr paypalTokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("paypal token exchange decode: %w", err)
		}

		g.mu.Lock()
		g.token = tr.AccessToken
		g.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		g.mu.Unlock()
		return tr.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type paypalOrderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		InvoiceID string `json:"invoice_id"`
		CustomID  string `json:"custom_id"`
		Amount    struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// CreateOrder creates a CAPTURE-intent checkout order. invoiceID and
// customID are set verbatim on the purchase unit so they come back unchanged
// in status lookups and webhooks.
func (g *PayPalGateway) CreateOrder(ctx context.Context, quote adapter.PriceQuote, invoiceID, customID string, contact adapter.BuyerContact) (adapter.CreatedOrder, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"invoice_id": invoiceID,
				"custom_id":  customID,
				"amount": map[string]string{
					"currency_code": strings.ToUpper(quote.Currency),
					"value":         quote.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"brand_name": g.brandName,
			"return_url": g.returnURL,
			"cancel_url": g.cancelURL,
		},
	}
	if contact.Email != "" {
		payload["payer"] = map[string]string{"email_address": contact.Email}
	}

	var order paypalOrderResponse
	if err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return adapter.CreatedOrder{}, err
	}

	approval := ""
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approval = link.Href
			break
		}
	}
	if approval == "" {
		return adapter.CreatedOrder{}, &adapter.GatewayError{Provider: "paypal", StatusCode: http.StatusOK, Body: "order response carried no approval link"}
	}
	return adapter.CreatedOrder{OrderID: order.ID, RedirectURL: approval}, nil
}

func (g *PayPalGateway) GetOrder(ctx context.Context, orderID string) (adapter.OrderSnapshot, error) {
	var order paypalOrderResponse
	if err := g.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return adapter.OrderSnapshot{}, err
	}

	snap := adapter.OrderSnapshot{OrderID: order.ID, Status: mapPayPalStatus(order.Status)}
	if len(order.PurchaseUnits) > 0 {
		pu := order.PurchaseUnits[0]
		snap.InvoiceID = pu.InvoiceID
		snap.CustomID = pu.CustomID
		snap.Currency = pu.Amount.CurrencyCode
		if amount, err := decimal.NewFromString(pu.Amount.Value); err == nil {
			snap.Amount = amount
		}
	}
	return snap, nil
}

type paypalCaptureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *PayPalGateway) Capture(ctx context.Context, orderID string) (adapter.CaptureResult, error) {
	var cap paypalCaptureResponse
	if err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", map[string]interface{}{}, &cap); err != nil {
		return adapter.CaptureResult{}, err
	}
	return adapter.CaptureResult{CaptureID: cap.ID, Completed: cap.Status == "COMPLETED"}, nil
}

// VerifyWebhookSignature calls the provider's verification endpoint with the
// transmission headers and the raw event body.
func (g *PayPalGateway) VerifyWebhookSignature(ctx context.Context, webhookID string, n adapter.WebhookNotification) (bool, error) {
	payload := map[string]interface{}{
		"transmission_id":   n.Headers["Paypal-Transmission-Id"],
		"transmission_time": n.Headers["Paypal-Transmission-Time"],
		"transmission_sig":  n.Headers["Paypal-Transmission-Sig"],
		"cert_url":          n.Headers["Paypal-Cert-Url"],
		"auth_algo":         n.Headers["Paypal-Auth-Algo"],
		"webhook_id":        webhookID,
		"webhook_event":     json.RawMessage(n.Body),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}

// doJSON performs one authenticated JSON request. Non-2xx responses become
// a GatewayError carrying the raw body for diagnostics.
func (g *PayPalGateway) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := g.getAccessToken(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("paypal request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paypal response read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &adapter.GatewayError{Provider: "paypal", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paypal response decode: %w, body: %s", err, string(raw))
		}
	}
	return nil
}

func mapPayPalStatus(s string) adapter.OrderStatus {
	switch s {
	case "APPROVED":
		return adapter.OrderStatusApproved
	case "COMPLETED":
		return adapter.OrderStatusCompleted
	case "VOIDED":
		return adapter.OrderStatusCancelled
	default:
		return adapter.OrderStatusPending
	}
}
