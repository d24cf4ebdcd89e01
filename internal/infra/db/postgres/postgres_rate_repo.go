package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/ports/repository"
)

var _ repository.ExchangeRateRepository = (*rateRepo)(nil)

type rateRepo struct{ pool *pgxpool.Pool }

func NewExchangeRateRepo(pool *pgxpool.Pool) *rateRepo {
	return &rateRepo{pool: pool}
}

// ActiveRate looks up the single active rate for a currency pair. Multiple
// active rows would be an operator mistake; the newest one wins.
func (r *rateRepo) ActiveRate(ctx context.Context, tx repository.Tx, from, to string) (decimal.Decimal, error) {
	const q = `SELECT rate::text FROM exchange_rates WHERE from_currency=$1 AND to_currency=$2 AND active ORDER BY updated_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrNoExchangeRate
		}
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	if !rate.IsPositive() {
		return decimal.Zero, domain.ErrNoExchangeRate
	}
	return rate, nil
}
