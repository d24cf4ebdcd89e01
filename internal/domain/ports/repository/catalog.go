package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain/model"
)

type CourseRepository interface {
	// FindActiveBySlug returns domain.ErrProductNotFound for missing or
	// inactive courses.
	FindActiveBySlug(ctx context.Context, tx Tx, slug string) (*model.Course, error)
}

type PlanRepository interface {
	FindActiveBySlug(ctx context.Context, tx Tx, slug string) (*model.Plan, error)
}

type ExchangeRateRepository interface {
	// ActiveRate returns the active rate for the pair, or
	// domain.ErrNoExchangeRate when no active row exists. Never defaults
	// to 1:1.
	ActiveRate(ctx context.Context, tx Tx, from, to string) (decimal.Decimal, error)
}
