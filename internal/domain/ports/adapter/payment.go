package adapter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceQuote is the final chargeable amount handed to a gateway. A quote
// with a non-positive amount must never reach CreateOrder; the free-access
// path bypasses providers entirely.
type PriceQuote struct {
	Amount   decimal.Decimal
	Currency string
}

// BuyerContact is the minimal buyer info some providers want on an order.
type BuyerContact struct {
	Email string
	Name  string
}

// CreatedOrder is the result of a successful hosted-checkout order create.
type CreatedOrder struct {
	OrderID     string
	RedirectURL string
}

// OrderSnapshot is the authoritative provider-side view of an order,
// re-fetched during reconciliation. Webhook bodies are only pointers; this
// is the trust boundary.
type OrderSnapshot struct {
	OrderID   string
	Status    OrderStatus
	InvoiceID string
	CustomID  string
	Amount    decimal.Decimal
	Currency  string
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusDeclined  OrderStatus = "declined"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CaptureResult is the outcome of an explicit post-approval capture.
type CaptureResult struct {
	CaptureID string
	Completed bool
}

// GatewayError carries the provider HTTP status and raw body for operator
// diagnostics. It is never relayed verbatim to a buyer.
type GatewayError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway error: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

// ProviderGateway is the hex port for payment providers.
type ProviderGateway interface {
	Name() string

	// CreateOrder creates a hosted-checkout order carrying invoiceID and
	// customID verbatim so they survive to webhooks and status lookups.
	CreateOrder(ctx context.Context, quote PriceQuote, invoiceID, customID string, contact BuyerContact) (CreatedOrder, error)

	// GetOrder fetches authoritative order state. A failure here must abort
	// reconciliation rather than default to any status.
	GetOrder(ctx context.Context, orderID string) (OrderSnapshot, error)

	// RequiresCapture reports whether an approved order still needs an
	// explicit capture call before it is settled.
	RequiresCapture() bool

	// Capture performs the explicit capture step for providers that need
	// one. A capture failure must not mark a payment approved.
	Capture(ctx context.Context, orderID string) (CaptureResult, error)
}

// WebhookNotification is a provider callback after transport decoding:
// headers relevant to authentication plus the raw body.
type WebhookNotification struct {
	Headers map[string]string
	Body    []byte
	// OrderID as extracted from the notification; used only as a pointer
	// for the authoritative GetOrder re-fetch.
	OrderID string
}

// WebhookVerifier authenticates a provider notification. Implementations
// wrap provider-specific signature schemes; a false verdict means the
// notification is ignored, acknowledged generically, and never retried.
type WebhookVerifier interface {
	Verify(ctx context.Context, n WebhookNotification) bool
}
