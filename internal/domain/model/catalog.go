package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is a purchasable course with a base USD price.
type Course struct {
	ID        string
	Slug      string
	Title     string
	PriceUSD  decimal.Decimal
	Active    bool
	CreatedAt time.Time
}

func (c *Course) IsZero() bool { return c == nil || c.ID == "" }

// Plan is a purchasable organization subscription plan with monthly and
// annual base USD prices.
type Plan struct {
	ID              string
	Slug            string
	Name            string
	PriceMonthlyUSD decimal.Decimal
	PriceAnnualUSD  decimal.Decimal
	Active          bool
	CreatedAt       time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// ExchangeRate is one stored conversion rate. Pricing only ever consults
// active rows; an inactive or missing pair is a hard pricing failure.
type ExchangeRate struct {
	ID           string
	FromCurrency string
	ToCurrency   string
	Rate         decimal.Decimal
	Active       bool
	UpdatedAt    time.Time
}
