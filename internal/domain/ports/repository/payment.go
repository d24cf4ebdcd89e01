package repository

import (
	"context"
	"time"

	"course-platform-payments/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByProviderOrderID(ctx context.Context, tx Tx, provider, orderID string) (*model.Payment, error)
	// SetProviderOrder records the provider-assigned order id after a
	// successful CreateOrder call.
	SetProviderOrder(ctx context.Context, tx Tx, id, providerOrderID string) error
	// MarkTerminalIfCreated atomically moves the record to a terminal status
	// only when it is still in created status. Returns whether this caller
	// won the transition; the idempotency guard for duplicate webhooks.
	MarkTerminalIfCreated(ctx context.Context, tx Tx, id string, status model.PaymentStatus, reconciledAt time.Time) (bool, error)
	// ListCreatedOlderThan feeds the stale-order sweeper.
	ListCreatedOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	// RecordEvent appends one audit-trail row.
	RecordEvent(ctx context.Context, tx Tx, e *model.PaymentEvent) error
}
