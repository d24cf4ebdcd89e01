package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/adapter"
	"course-platform-payments/internal/domain/ports/repository"
)

// Locker is the per-order mutual exclusion used around the
// created -> terminal transition plus entitlement grant. Implemented by the
// redis SetNX lock; the conditional SQL update remains the final authority,
// the lock only keeps capture and entitlement from racing.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// ReconcileOutcome classifies what a webhook delivery did. None of these are
// errors at the HTTP level except a failed authoritative re-fetch, which is
// returned as a plain error so the provider retries.
type ReconcileOutcome int

const (
	// ReconcileIgnored covers unauthenticated notifications, unknown
	// orders and not-yet-final provider states: acknowledged, no effect.
	ReconcileIgnored ReconcileOutcome = iota
	// ReconcileAlreadyTerminal is the idempotency guard firing on a
	// duplicate delivery; a designed success path, not an error.
	ReconcileAlreadyTerminal
	// ReconcileTransitioned means this delivery won the created -> terminal
	// transition.
	ReconcileTransitioned
	// ReconcileAnomaly marks a data-integrity problem (undecodable
	// identifiers) that needs an operator; the record stays created.
	ReconcileAnomaly
)

type ReconcileResult struct {
	Outcome   ReconcileOutcome
	PaymentID string
	Status    model.PaymentStatus
	Amount    decimal.Decimal
	Currency  string
	Note      string
}

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// Reconcile drives one inbound provider notification to its effect.
	// A returned error means the provider must retry (authoritative fetch
	// failed, capture failed, storage failed); everything else is
	// acknowledged.
	Reconcile(ctx context.Context, provider string, n adapter.WebhookNotification) (ReconcileResult, error)
	// ReconcileOrder runs the same flow for a known provider order without a
	// notification to authenticate. Used by the stale-order sweeper.
	ReconcileOrder(ctx context.Context, provider, orderID string) (ReconcileResult, error)
}

type reconcileUC struct {
	payments    repository.PaymentRepository
	txm         repository.TransactionManager
	gateways    map[string]adapter.ProviderGateway
	verifiers   map[string]adapter.WebhookVerifier
	entitlement adapter.EntitlementService
	locker      Locker
	lockTTL     time.Duration
	log         *zerolog.Logger
}

func NewReconcileUseCase(
	payments repository.PaymentRepository,
	txm repository.TransactionManager,
	gateways map[string]adapter.ProviderGateway,
	verifiers map[string]adapter.WebhookVerifier,
	entitlement adapter.EntitlementService,
	locker Locker,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		payments:    payments,
		txm:         txm,
		gateways:    gateways,
		verifiers:   verifiers,
		entitlement: entitlement,
		locker:      locker,
		lockTTL:     30 * time.Second,
		log:         logger,
	}
}

func (u *reconcileUC) Reconcile(ctx context.Context, provider string, n adapter.WebhookNotification) (ReconcileResult, error) {
	gw, ok := u.gateways[provider]
	if !ok {
		return ReconcileResult{Outcome: ReconcileIgnored, Note: "unknown provider"}, nil
	}

	// Authentication failure is ignored, not retried; the response must not
	// tell the provider why.
	if v, ok := u.verifiers[provider]; ok {
		if !v.Verify(ctx, n) {
			u.log.Warn().Str("provider", provider).Msg("webhook failed authentication; ignoring")
			return ReconcileResult{Outcome: ReconcileIgnored, Note: "authentication failed"}, nil
		}
	}

	if n.OrderID == "" {
		u.log.Warn().Str("provider", provider).Msg("webhook carried no order id; ignoring")
		return ReconcileResult{Outcome: ReconcileIgnored, Note: "no order id"}, nil
	}

	return u.reconcileOrder(ctx, provider, gw, n.OrderID, "webhook")
}

// ReconcileOrder skips notification authentication; the caller already knows
// the order exists locally.
func (u *reconcileUC) ReconcileOrder(ctx context.Context, provider, orderID string) (ReconcileResult, error) {
	gw, ok := u.gateways[provider]
	if !ok {
		return ReconcileResult{Outcome: ReconcileIgnored, Note: "unknown provider"}, nil
	}
	if orderID == "" {
		return ReconcileResult{Outcome: ReconcileIgnored, Note: "no order id"}, nil
	}
	return u.reconcileOrder(ctx, provider, gw, orderID, "sweeper")
}

func (u *reconcileUC) reconcileOrder(ctx context.Context, provider string, gw adapter.ProviderGateway, refID, source string) (ReconcileResult, error) {
	// The notification body is only a pointer; final status comes from the
	// provider directly. A fetch failure aborts the whole webhook call so
	// the provider retries later.
	snap, err := gw.GetOrder(ctx, refID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("authoritative order fetch: %w", err)
	}

	// The snapshot's order id is the one checkout stored. For one provider
	// the notification references a payment object instead; the gateway
	// resolves it back to the order id during the fetch.
	orderKey := snap.OrderID
	if orderKey == "" {
		orderKey = refID
	}

	p, err := u.payments.FindByProviderOrderID(ctx, nil, provider, orderKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Out-of-order or foreign notification.
			u.log.Warn().Str("provider", provider).Str("order_id", orderKey).Msg("no local payment for provider order; ignoring")
			return ReconcileResult{Outcome: ReconcileIgnored, Note: "unknown order"}, nil
		}
		return ReconcileResult{}, err
	}

	// Idempotency guard: duplicate deliveries after the first terminal
	// transition are a no-op success.
	if p.Status.IsTerminal() {
		return ReconcileResult{Outcome: ReconcileAlreadyTerminal, PaymentID: p.ID, Status: p.Status}, nil
	}

	target := mapOrderStatus(snap.Status)
	if target == "" {
		// Provider state is not final yet; acknowledge and wait for the
		// next notification.
		return ReconcileResult{Outcome: ReconcileIgnored, PaymentID: p.ID, Note: "provider state not final"}, nil
	}

	pin := u.decodeIntent(snap, p)
	if target == model.PaymentStatusApproved && pin.ProductType == intent.ProductTypeUnknown {
		// Cannot guess who bought what. Leave the record created for manual
		// intervention; this must never be a silent drop.
		u.log.Error().
			Str("payment_id", p.ID).
			Str("provider", provider).
			Str("order_id", orderKey).
			Str("invoice_id", snap.InvoiceID).
			Str("custom_id", snap.CustomID).
			Msg("undecodable purchase intent on approved order; manual intervention required")
		return ReconcileResult{Outcome: ReconcileAnomaly, PaymentID: p.ID, Note: "undecodable intent"}, nil
	}

	lockKey := "reconcile:" + provider + ":" + orderKey
	token, err := u.locker.TryLock(ctx, lockKey, u.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			// A concurrent delivery holds the lock and is doing the work.
			// Treat this invocation as the designed losing path.
			u.log.Info().Str("payment_id", p.ID).Msg("concurrent reconcile in progress; acknowledging")
			return ReconcileResult{Outcome: ReconcileIgnored, PaymentID: p.ID, Note: "concurrent reconcile"}, nil
		}
		// The lock backend itself failed. Answering 200 here would stop the
		// provider's retries and strand the order until the sweeper; surface
		// the error so the delivery is retried instead.
		return ReconcileResult{}, fmt.Errorf("reconcile lock: %w", err)
	}
	defer func() {
		if err := u.locker.Unlock(ctx, lockKey, token); err != nil {
			u.log.Warn().Err(err).Str("key", lockKey).Msg("reconcile unlock failed; lock will expire by TTL")
		}
	}()

	// One provider settles only after an explicit capture. Capture must
	// precede the local transition: a capture failure may not leave an
	// approved record behind.
	if target == model.PaymentStatusApproved && gw.RequiresCapture() && snap.Status == adapter.OrderStatusApproved {
		cap, err := gw.Capture(ctx, refID)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("capture: %w", err)
		}
		if !cap.Completed {
			return ReconcileResult{}, domain.ErrCaptureIncomplete
		}
	}

	// The transition and its audit row commit together.
	now := time.Now()
	var won bool
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		won, err = u.payments.MarkTerminalIfCreated(ctx, tx, p.ID, target, now)
		if err != nil || !won {
			return err
		}
		return u.payments.RecordEvent(ctx, tx, &model.PaymentEvent{
			ID:         ulid.Make().String(),
			PaymentID:  p.ID,
			FromStatus: model.PaymentStatusCreated,
			ToStatus:   target,
			Source:     source,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if !won {
		// Another writer got there first under a racing delivery.
		return ReconcileResult{Outcome: ReconcileAlreadyTerminal, PaymentID: p.ID, Status: target}, nil
	}

	u.log.Info().
		Str("payment_id", p.ID).
		Str("provider", provider).
		Str("order_id", orderKey).
		Str("status", string(target)).
		Msg("payment reconciled")

	if target == model.PaymentStatusApproved {
		if err := u.grant(ctx, pin); err != nil {
			// The transition is already persisted; the grant collaborator is
			// idempotent, so surfacing the error lets the provider retry the
			// delivery and re-run only the grant.
			return ReconcileResult{}, fmt.Errorf("entitlement grant: %w", err)
		}
	}

	return ReconcileResult{Outcome: ReconcileTransitioned, PaymentID: p.ID, Status: target, Amount: p.Amount, Currency: p.Currency}, nil
}

// decodeIntent prefers the richer custom-id channel, falls back to the
// invoice id, then to what checkout stored locally.
func (u *reconcileUC) decodeIntent(snap adapter.OrderSnapshot, p *model.Payment) intent.PurchaseIntent {
	if snap.CustomID != "" {
		if in := intent.DecodeCustomID(snap.CustomID); in.ProductType != intent.ProductTypeUnknown {
			return in
		}
	}
	if snap.InvoiceID != "" {
		if in := intent.DecodeInvoiceID(snap.InvoiceID); in.ProductType != intent.ProductTypeUnknown {
			return in
		}
	}
	if p.CustomID != "" {
		if in := intent.DecodeCustomID(p.CustomID); in.ProductType != intent.ProductTypeUnknown {
			return in
		}
	}
	return p.Intent
}

func (u *reconcileUC) grant(ctx context.Context, pin intent.PurchaseIntent) error {
	if pin.ProductType == intent.ProductTypeSubscription {
		return u.entitlement.ActivateSubscription(ctx, pin.OrganizationID, pin.PlanRef, pin.BillingPeriod)
	}
	months := pin.Months
	if months <= 0 {
		months = intent.DefaultCourseMonths
	}
	return u.entitlement.GrantCourseAccess(ctx, pin.BuyerID, pin.ProductRef, months)
}

// mapOrderStatus translates the provider's authoritative state onto the
// local enum; non-final states map to the empty string.
func mapOrderStatus(s adapter.OrderStatus) model.PaymentStatus {
	switch s {
	case adapter.OrderStatusApproved, adapter.OrderStatusCompleted:
		return model.PaymentStatusApproved
	case adapter.OrderStatusDeclined:
		return model.PaymentStatusDeclined
	case adapter.OrderStatusCancelled:
		return model.PaymentStatusCancelled
	default:
		return ""
	}
}
