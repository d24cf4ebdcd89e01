package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/adapter"
	"course-platform-payments/internal/domain/ports/repository"
)

// CheckoutRequest is one buyer-initiated purchase attempt.
type CheckoutRequest struct {
	BuyerID        string
	BuyerEmail     string
	ProductType    intent.ProductType
	ProductRef     string
	Currency       string
	Months         int // course only; 0 means the 12-month default
	OrganizationID string
	BillingPeriod  intent.BillingPeriod
	CouponCode     string
	Provider       string
}

// CheckoutResult either redirects the buyer to the provider or reports that
// a free-access coupon granted the entitlement directly.
type CheckoutResult struct {
	RedirectURL string
	PaymentID   string
	Granted     bool
}

// CouponRejectedError aborts checkout with the opaque rejection reason; the
// buyer sees the reason code, never an internal error.
type CouponRejectedError struct{ Reason string }

func (e *CouponRejectedError) Error() string { return "coupon rejected: " + e.Reason }

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
}

type checkoutUC struct {
	pricing     PricingUseCase
	coupons     CouponUseCase
	payments    repository.PaymentRepository
	gateways    map[string]adapter.ProviderGateway
	entitlement adapter.EntitlementService
	log         *zerolog.Logger
}

func NewCheckoutUseCase(
	pricing PricingUseCase,
	coupons CouponUseCase,
	payments repository.PaymentRepository,
	gateways map[string]adapter.ProviderGateway,
	entitlement adapter.EntitlementService,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		pricing:     pricing,
		coupons:     coupons,
		payments:    payments,
		gateways:    gateways,
		entitlement: entitlement,
		log:         logger,
	}
}

// Checkout runs the full orchestration: quote, coupon branch, identifier
// encoding, local record creation, provider order creation. Each step gates
// the next; there are no parallel branches.
func (u *checkoutUC) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	gw, ok := u.gateways[req.Provider]
	if !ok {
		return CheckoutResult{}, domain.ErrInvalidArgument
	}

	quote, pin, err := u.quote(ctx, req)
	if err != nil {
		return CheckoutResult{}, err
	}

	if req.CouponCode != "" {
		outcome := u.coupons.ValidateAndApply(ctx, req.BuyerID, req.CouponCode, pin.ProductRef, quote.Amount, quote.Currency)
		switch outcome.Kind {
		case CouponRejected:
			return CheckoutResult{}, &CouponRejectedError{Reason: outcome.Reason}
		case CouponFreeAccess:
			return u.grantFreeAccess(ctx, pin)
		case CouponApplied:
			quote.Amount = outcome.FinalPrice
		}
	}

	invoiceID := intent.EncodeInvoiceID(pin)
	customID := intent.EncodeCustomID(pin)

	now := time.Now()
	p := &model.Payment{
		ID:        ulid.Make().String(),
		Provider:  gw.Name(),
		Intent:    pin,
		InvoiceID: invoiceID,
		CustomID:  customID,
		Amount:    quote.Amount,
		Currency:  quote.Currency,
		Status:    model.PaymentStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return CheckoutResult{}, err
	}

	order, err := gw.CreateOrder(ctx, quote, invoiceID, customID, adapter.BuyerContact{Email: req.BuyerEmail})
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Str("provider", gw.Name()).Msg("provider order creation failed")
		if _, markErr := u.payments.MarkTerminalIfCreated(ctx, nil, p.ID, model.PaymentStatusFailedToCreate, time.Now()); markErr != nil {
			u.log.Error().Err(markErr).Str("payment_id", p.ID).Msg("failed to mark payment failed_to_create")
		} else if evErr := u.payments.RecordEvent(ctx, nil, &model.PaymentEvent{
			ID:         ulid.Make().String(),
			PaymentID:  p.ID,
			FromStatus: model.PaymentStatusCreated,
			ToStatus:   model.PaymentStatusFailedToCreate,
			Source:     "checkout",
			Note:       "provider order creation failed",
			CreatedAt:  time.Now(),
		}); evErr != nil {
			u.log.Warn().Err(evErr).Str("payment_id", p.ID).Msg("failed to record payment event")
		}
		return CheckoutResult{}, domain.ErrOrderCreateFailed
	}

	if err := u.payments.SetProviderOrder(ctx, nil, p.ID, order.OrderID); err != nil {
		return CheckoutResult{}, err
	}

	u.log.Info().
		Str("payment_id", p.ID).
		Str("provider", gw.Name()).
		Str("order_id", order.OrderID).
		Str("amount", quote.Amount.String()).
		Str("currency", quote.Currency).
		Msg("checkout order created")

	return CheckoutResult{RedirectURL: order.RedirectURL, PaymentID: p.ID}, nil
}

// quote resolves the price and assembles the purchase intent the encoded
// identifiers will carry.
func (u *checkoutUC) quote(ctx context.Context, req CheckoutRequest) (adapter.PriceQuote, intent.PurchaseIntent, error) {
	switch req.ProductType {
	case intent.ProductTypeSubscription:
		q, err := u.pricing.PlanPrice(ctx, req.ProductRef, req.Currency, req.BillingPeriod)
		if err != nil {
			return adapter.PriceQuote{}, intent.PurchaseIntent{}, err
		}
		return q, intent.PurchaseIntent{
			BuyerID:        req.BuyerID,
			ProductType:    intent.ProductTypeSubscription,
			ProductRef:     req.ProductRef,
			OrganizationID: req.OrganizationID,
			PlanRef:        req.ProductRef,
			BillingPeriod:  req.BillingPeriod,
			CouponCode:     req.CouponCode,
		}, nil
	case intent.ProductTypeCourse:
		q, err := u.pricing.CoursePrice(ctx, req.ProductRef, req.Currency)
		if err != nil {
			return adapter.PriceQuote{}, intent.PurchaseIntent{}, err
		}
		months := req.Months
		if months <= 0 {
			months = intent.DefaultCourseMonths
		}
		return q, intent.PurchaseIntent{
			BuyerID:     req.BuyerID,
			ProductType: intent.ProductTypeCourse,
			ProductRef:  req.ProductRef,
			Months:      months,
			CouponCode:  req.CouponCode,
		}, nil
	default:
		return adapter.PriceQuote{}, intent.PurchaseIntent{}, domain.ErrInvalidArgument
	}
}

func (u *checkoutUC) grantFreeAccess(ctx context.Context, pin intent.PurchaseIntent) (CheckoutResult, error) {
	var err error
	if pin.ProductType == intent.ProductTypeSubscription {
		err = u.entitlement.ActivateSubscription(ctx, pin.OrganizationID, pin.PlanRef, pin.BillingPeriod)
	} else {
		months := pin.Months
		if months <= 0 {
			months = intent.DefaultCourseMonths
		}
		err = u.entitlement.GrantCourseAccess(ctx, pin.BuyerID, pin.ProductRef, months)
	}
	if err != nil {
		return CheckoutResult{}, err
	}
	u.log.Info().Str("buyer", pin.BuyerID).Str("product", pin.ProductRef).Msg("free-access coupon granted entitlement without provider order")
	return CheckoutResult{Granted: true}, nil
}
