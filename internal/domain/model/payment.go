package model

import (
	"time"

	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain/intent"
)

type PaymentStatus string

const (
	PaymentStatusCreated        PaymentStatus = "created"          // row inserted, buyer redirected to provider
	PaymentStatusApproved       PaymentStatus = "approved"         // provider confirmed the charge
	PaymentStatusDeclined       PaymentStatus = "declined"         // provider declined the charge
	PaymentStatusCancelled      PaymentStatus = "cancelled"        // buyer abandoned at the provider
	PaymentStatusFailedToCreate PaymentStatus = "failed_to_create" // provider order creation failed
)

// IsTerminal reports whether no further transition is allowed from s.
// Every status except created is terminal.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusCreated && s != ""
}

// CanTransitionTo reports whether the s -> next transition is legal.
// The only legal transitions are created -> terminal; a terminal record is
// immutable (first terminal wins, later webhook deliveries no-op).
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusCreated && next.IsTerminal()
}

// Payment records one provider order attempt. The checkout flow creates the
// row in created status; only the webhook reconciler moves it afterwards,
// and rows are never deleted.
type Payment struct {
	ID              string // ULID
	Provider        string // "paypal" | "mercadopago"
	ProviderOrderID string
	Intent          intent.PurchaseIntent // denormalized from the encoded identifiers
	InvoiceID       string
	CustomID        string
	Amount          decimal.Decimal
	Currency        string
	Status          PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReconciledAt    *time.Time // set when the record reaches a terminal status
}

// PaymentEvent is one line of the append-only audit trail. Status
// transitions write their event row in the same transaction as the
// transition itself.
type PaymentEvent struct {
	ID         string // ULID
	PaymentID  string
	FromStatus PaymentStatus
	ToStatus   PaymentStatus
	Source     string // "checkout" | "webhook" | "sweeper"
	Note       string
	CreatedAt  time.Time
}
