package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// CouponVerdict is the raw answer of the authoritative coupon rule. This
// core treats discount arithmetic and usage counters as the authority's
// responsibility and never reimplements them.
type CouponVerdict struct {
	OK         bool
	Reason     string
	FinalPrice decimal.Decimal
}

// CouponAuthority is the single external validation call for coupons. The
// buyer id travels with the request so the authority can enforce per-buyer
// rules (usage caps, first-purchase coupons).
type CouponAuthority interface {
	Validate(ctx context.Context, buyerID, code, productRef string, price decimal.Decimal, currency string) (CouponVerdict, error)
}
