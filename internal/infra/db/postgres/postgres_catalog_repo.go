package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/repository"
)

var (
	_ repository.CourseRepository = (*courseRepo)(nil)
	_ repository.PlanRepository   = (*planRepo)(nil)
)

// Column lists must agree with migrations/schema.sql; the catalog repo test
// cross-checks them against the DDL.
const (
	courseBySlugSQL = `SELECT id, slug, title, price_usd::text, active, created_at FROM courses WHERE slug=$1 AND active LIMIT 1;`
	planBySlugSQL   = `SELECT id, slug, name, price_monthly_usd::text, price_annual_usd::text, active, created_at FROM plans WHERE slug=$1 AND active LIMIT 1;`
)

type courseRepo struct{ pool *pgxpool.Pool }

func NewCourseRepo(pool *pgxpool.Pool) *courseRepo {
	return &courseRepo{pool: pool}
}

func (r *courseRepo) FindActiveBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Course, error) {
	row, err := pickRow(ctx, r.pool, tx, courseBySlugSQL, slug)
	if err != nil {
		return nil, err
	}
	c := &model.Course{}
	var price string
	if err := row.Scan(&c.ID, &c.Slug, &c.Title, &price, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	c.PriceUSD = p
	return c, nil
}

type planRepo struct{ pool *pgxpool.Pool }

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func (r *planRepo) FindActiveBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, planBySlugSQL, slug)
	if err != nil {
		return nil, err
	}
	p := &model.Plan{}
	var monthly, annual string
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &monthly, &annual, &p.Active, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	m, err := decimal.NewFromString(monthly)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	a, err := decimal.NewFromString(annual)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.PriceMonthlyUSD, p.PriceAnnualUSD = m, a
	return p, nil
}
