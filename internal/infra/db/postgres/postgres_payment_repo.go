package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, provider, provider_order_id, buyer_id, product_type, product_ref, months, organization_id, plan_ref, billing_period, coupon_code, coupon_id, invoice_id, custom_id, amount::text, currency, status, created_at, updated_at, reconciled_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, provider, provider_order_id, buyer_id, product_type, product_ref, months, organization_id, plan_ref, billing_period, coupon_code, coupon_id, invoice_id, custom_id, amount, currency, status, created_at, updated_at, reconciled_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::numeric,$16,$17,$18,$19,$20
) ON CONFLICT (id) DO UPDATE SET
  provider_order_id=$3, status=$17, updated_at=$19, reconciled_at=$20;`

	in := p.Intent
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.Provider, nullable(p.ProviderOrderID),
		in.BuyerID, string(in.ProductType), in.ProductRef, in.Months,
		in.OrganizationID, in.PlanRef, string(in.BillingPeriod),
		in.CouponCode, in.CouponID,
		p.InvoiceID, p.CustomID,
		p.Amount.String(), p.Currency, string(p.Status),
		p.CreatedAt, p.UpdatedAt, p.ReconciledAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByProviderOrderID(ctx context.Context, tx repository.Tx, provider, orderID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND provider_order_id=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, provider, orderID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) SetProviderOrder(ctx context.Context, tx repository.Tx, id, providerOrderID string) error {
	const q = `UPDATE payments SET provider_order_id=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, providerOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// MarkTerminalIfCreated atomically transitions the record only when it is
// still in created status. First writer wins; racing duplicate webhook
// deliveries observe zero rows affected.
func (r *paymentRepo) MarkTerminalIfCreated(
	ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reconciledAt time.Time,
) (bool, error) {
	if !status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
    UPDATE payments
       SET status = $2,
           reconciled_at = $3,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'created';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), reconciledAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListCreatedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status='created' AND provider_order_id IS NOT NULL AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, domain.ErrNotFound
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) RecordEvent(ctx context.Context, tx repository.Tx, e *model.PaymentEvent) error {
	const q = `
INSERT INTO payment_events (id, payment_id, from_status, to_status, source, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.PaymentID, string(e.FromStatus), string(e.ToStatus), e.Source, nullable(e.Note), e.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	p := &model.Payment{}
	var (
		orderID                               *string
		productType, billingPeriod, amountStr string
		status                                string
	)
	if err := row.Scan(
		&p.ID, &p.Provider, &orderID,
		&p.Intent.BuyerID, &productType, &p.Intent.ProductRef, &p.Intent.Months,
		&p.Intent.OrganizationID, &p.Intent.PlanRef, &billingPeriod,
		&p.Intent.CouponCode, &p.Intent.CouponID,
		&p.InvoiceID, &p.CustomID,
		&amountStr, &p.Currency, &status,
		&p.CreatedAt, &p.UpdatedAt, &p.ReconciledAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if orderID != nil {
		p.ProviderOrderID = *orderID
	}
	p.Intent.ProductType = intent.ProductType(productType)
	p.Intent.BillingPeriod = intent.BillingPeriod(billingPeriod)
	p.Status = model.PaymentStatus(status)
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Amount = amount
	return p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
