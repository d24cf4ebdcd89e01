package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/ports/adapter"
	"course-platform-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ PricingUseCase = (*pricingUC)(nil)

// PricingUseCase resolves the final chargeable amount for a product in a
// target currency. No rounding happens here; presentation formats the
// amount.
type PricingUseCase interface {
	// CoursePrice quotes a course purchase. Course access is always 12
	// months regardless of the requested duration.
	CoursePrice(ctx context.Context, slug, currency string) (adapter.PriceQuote, error)
	// PlanPrice quotes an organization subscription for the billing period.
	PlanPrice(ctx context.Context, slug, currency string, period intent.BillingPeriod) (adapter.PriceQuote, error)
}

type pricingUC struct {
	courses repository.CourseRepository
	plans   repository.PlanRepository
	rates   repository.ExchangeRateRepository
	log     *zerolog.Logger
}

func NewPricingUseCase(courses repository.CourseRepository, plans repository.PlanRepository, rates repository.ExchangeRateRepository, logger *zerolog.Logger) *pricingUC {
	return &pricingUC{courses: courses, plans: plans, rates: rates, log: logger}
}

func (u *pricingUC) CoursePrice(ctx context.Context, slug, currency string) (adapter.PriceQuote, error) {
	course, err := u.courses.FindActiveBySlug(ctx, nil, slug)
	if err != nil {
		return adapter.PriceQuote{}, err
	}
	if !course.PriceUSD.IsPositive() {
		u.log.Warn().Str("course", slug).Str("price", course.PriceUSD.String()).Msg("course has non-positive base price")
		return adapter.PriceQuote{}, domain.ErrInvalidPrice
	}
	return u.convert(ctx, course.PriceUSD, currency)
}

func (u *pricingUC) PlanPrice(ctx context.Context, slug, currency string, period intent.BillingPeriod) (adapter.PriceQuote, error) {
	plan, err := u.plans.FindActiveBySlug(ctx, nil, slug)
	if err != nil {
		return adapter.PriceQuote{}, err
	}
	var base decimal.Decimal
	switch period {
	case intent.BillingPeriodAnnual:
		base = plan.PriceAnnualUSD
	case intent.BillingPeriodMonthly:
		base = plan.PriceMonthlyUSD
	default:
		return adapter.PriceQuote{}, domain.ErrInvalidArgument
	}
	if !base.IsPositive() {
		u.log.Warn().Str("plan", slug).Str("period", string(period)).Msg("plan has non-positive base price")
		return adapter.PriceQuote{}, domain.ErrInvalidPrice
	}
	return u.convert(ctx, base, currency)
}

// convert applies the stored active exchange rate for non-USD targets.
// A missing active rate is a hard failure, never a silent 1:1 fallback.
func (u *pricingUC) convert(ctx context.Context, amountUSD decimal.Decimal, currency string) (adapter.PriceQuote, error) {
	if currency == "" || currency == "USD" {
		return adapter.PriceQuote{Amount: amountUSD, Currency: "USD"}, nil
	}
	rate, err := u.rates.ActiveRate(ctx, nil, "USD", currency)
	if err != nil {
		return adapter.PriceQuote{}, err
	}
	amount := amountUSD.Mul(rate)
	if !amount.IsPositive() {
		return adapter.PriceQuote{}, domain.ErrInvalidPrice
	}
	return adapter.PriceQuote{Amount: amount, Currency: currency}, nil
}
