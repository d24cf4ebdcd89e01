package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain/ports/adapter"
)

type CouponOutcomeKind int

const (
	// CouponApplied carries a positive final price that overrides the quote.
	CouponApplied CouponOutcomeKind = iota
	// CouponFreeAccess means the authority approved the coupon and the
	// resulting price is zero or below; the caller must route to the
	// non-payment enrollment path and never contact a provider.
	CouponFreeAccess
	// CouponRejected covers invalid, expired, inapplicable coupons and
	// authority call failures alike.
	CouponRejected
)

// CouponOutcome is a distinguished non-error result: callers must branch on
// Kind, not on an error value.
type CouponOutcome struct {
	Kind       CouponOutcomeKind
	FinalPrice decimal.Decimal // Applied only
	Reason     string          // Rejected only; opaque code for logs/UI
}

// Compile-time check
var _ CouponUseCase = (*couponUC)(nil)

type CouponUseCase interface {
	ValidateAndApply(ctx context.Context, buyerID, code, productRef string, price decimal.Decimal, currency string) CouponOutcome
}

type couponUC struct {
	authority adapter.CouponAuthority
	log       *zerolog.Logger
}

func NewCouponUseCase(authority adapter.CouponAuthority, logger *zerolog.Logger) *couponUC {
	return &couponUC{authority: authority, log: logger}
}

func (u *couponUC) ValidateAndApply(ctx context.Context, buyerID, code, productRef string, price decimal.Decimal, currency string) CouponOutcome {
	verdict, err := u.authority.Validate(ctx, buyerID, code, productRef, price, currency)
	if err != nil {
		// The raw authority error stays in the logs; callers only see an
		// opaque reason code.
		u.log.Error().Err(err).Str("coupon", code).Str("product", productRef).Msg("coupon authority call failed")
		return CouponOutcome{Kind: CouponRejected, Reason: "validation_unavailable"}
	}
	if !verdict.OK {
		reason := verdict.Reason
		if reason == "" {
			reason = "coupon_declined"
		}
		return CouponOutcome{Kind: CouponRejected, Reason: reason}
	}
	if !verdict.FinalPrice.IsPositive() {
		return CouponOutcome{Kind: CouponFreeAccess}
	}
	return CouponOutcome{Kind: CouponApplied, FinalPrice: verdict.FinalPrice}
}
