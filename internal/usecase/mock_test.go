//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-platform-payments/internal/domain"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/model"
	"course-platform-payments/internal/domain/ports/adapter"
	"course-platform-payments/internal/domain/ports/repository"
	"course-platform-payments/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- Payment repository ---

type MockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
	events   []*model.PaymentEvent

	SaveFunc                  func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	MarkTerminalIfCreatedFunc func(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reconciledAt time.Time) (bool, error)
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{payments: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByProviderOrderID(ctx context.Context, tx repository.Tx, provider, orderID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Provider == provider && p.ProviderOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) SetProviderOrder(ctx context.Context, tx repository.Tx, id, providerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.ProviderOrderID = providerOrderID
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MockPaymentRepo) MarkTerminalIfCreated(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reconciledAt time.Time) (bool, error) {
	if m.MarkTerminalIfCreatedFunc != nil {
		return m.MarkTerminalIfCreatedFunc(ctx, tx, id, status, reconciledAt)
	}
	if !status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, nil
	}
	if p.Status != model.PaymentStatusCreated {
		return false, nil
	}
	p.Status = status
	p.ReconciledAt = &reconciledAt
	p.UpdatedAt = reconciledAt
	return true, nil
}

func (m *MockPaymentRepo) ListCreatedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.Status == model.PaymentStatusCreated && p.ProviderOrderID != "" && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) RecordEvent(ctx context.Context, tx repository.Tx, e *model.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *MockPaymentRepo) Events() []*model.PaymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.PaymentEvent(nil), m.events...)
}

// --- Catalog repositories ---

type MockCourseRepo struct {
	courses map[string]*model.Course
}

func NewMockCourseRepo() *MockCourseRepo {
	return &MockCourseRepo{courses: make(map[string]*model.Course)}
}

func (m *MockCourseRepo) Add(c *model.Course) { m.courses[c.Slug] = c }

func (m *MockCourseRepo) FindActiveBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Course, error) {
	c, ok := m.courses[slug]
	if !ok || !c.Active {
		return nil, domain.ErrProductNotFound
	}
	return c, nil
}

type MockPlanRepo struct {
	plans map[string]*model.Plan
}

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{plans: make(map[string]*model.Plan)}
}

func (m *MockPlanRepo) Add(p *model.Plan) { m.plans[p.Slug] = p }

func (m *MockPlanRepo) FindActiveBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Plan, error) {
	p, ok := m.plans[slug]
	if !ok || !p.Active {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

type MockRateRepo struct {
	rates map[string]decimal.Decimal // "FROM/TO"
}

func NewMockRateRepo() *MockRateRepo {
	return &MockRateRepo{rates: make(map[string]decimal.Decimal)}
}

func (m *MockRateRepo) Set(from, to string, rate decimal.Decimal) {
	m.rates[from+"/"+to] = rate
}

func (m *MockRateRepo) ActiveRate(ctx context.Context, tx repository.Tx, from, to string) (decimal.Decimal, error) {
	r, ok := m.rates[from+"/"+to]
	if !ok {
		return decimal.Decimal{}, domain.ErrNoExchangeRate
	}
	return r, nil
}

// --- Provider gateway ---

type MockGateway struct {
	NameValue     string
	RequiresCap   bool
	CreateOrderFn func(ctx context.Context, quote adapter.PriceQuote, invoiceID, customID string, contact adapter.BuyerContact) (adapter.CreatedOrder, error)
	GetOrderFn    func(ctx context.Context, orderID string) (adapter.OrderSnapshot, error)
	CaptureFn     func(ctx context.Context, orderID string) (adapter.CaptureResult, error)
	CreateCalls   int
	CaptureCalls  int
	GetOrderCalls int
}

func (m *MockGateway) Name() string          { return m.NameValue }
func (m *MockGateway) RequiresCapture() bool { return m.RequiresCap }

func (m *MockGateway) CreateOrder(ctx context.Context, quote adapter.PriceQuote, invoiceID, customID string, contact adapter.BuyerContact) (adapter.CreatedOrder, error) {
	m.CreateCalls++
	if m.CreateOrderFn != nil {
		return m.CreateOrderFn(ctx, quote, invoiceID, customID, contact)
	}
	return adapter.CreatedOrder{OrderID: "order-1", RedirectURL: "https://provider.example/pay/order-1"}, nil
}

func (m *MockGateway) GetOrder(ctx context.Context, orderID string) (adapter.OrderSnapshot, error) {
	m.GetOrderCalls++
	if m.GetOrderFn != nil {
		return m.GetOrderFn(ctx, orderID)
	}
	return adapter.OrderSnapshot{OrderID: orderID, Status: adapter.OrderStatusPending}, nil
}

func (m *MockGateway) Capture(ctx context.Context, orderID string) (adapter.CaptureResult, error) {
	m.CaptureCalls++
	if m.CaptureFn != nil {
		return m.CaptureFn(ctx, orderID)
	}
	return adapter.CaptureResult{CaptureID: "cap-1", Completed: true}, nil
}

// --- Webhook verifier ---

type MockVerifier struct {
	Result bool
	Calls  int
}

func (m *MockVerifier) Verify(ctx context.Context, n adapter.WebhookNotification) bool {
	m.Calls++
	return m.Result
}

// --- Entitlement service ---

type grantKey struct {
	kind string
	a, b string
}

type MockEntitlement struct {
	mu     sync.Mutex
	grants map[grantKey]int

	GrantCourseAccessFunc    func(ctx context.Context, buyerID, courseRef string, months int) error
	ActivateSubscriptionFunc func(ctx context.Context, organizationID, planRef string, period intent.BillingPeriod) error
}

func NewMockEntitlement() *MockEntitlement {
	return &MockEntitlement{grants: make(map[grantKey]int)}
}

func (m *MockEntitlement) GrantCourseAccess(ctx context.Context, buyerID, courseRef string, months int) error {
	if m.GrantCourseAccessFunc != nil {
		if err := m.GrantCourseAccessFunc(ctx, buyerID, courseRef, months); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grantKey{"course", buyerID, courseRef}]++
	return nil
}

func (m *MockEntitlement) ActivateSubscription(ctx context.Context, organizationID, planRef string, period intent.BillingPeriod) error {
	if m.ActivateSubscriptionFunc != nil {
		if err := m.ActivateSubscriptionFunc(ctx, organizationID, planRef, period); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grantKey{"subscription", organizationID, planRef}]++
	return nil
}

func (m *MockEntitlement) CourseGrants(buyerID, courseRef string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[grantKey{"course", buyerID, courseRef}]
}

func (m *MockEntitlement) SubscriptionGrants(organizationID, planRef string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[grantKey{"subscription", organizationID, planRef}]
}

// --- Coupon authority ---

type MockCouponAuthority struct {
	ValidateFunc func(ctx context.Context, buyerID, code, productRef string, price decimal.Decimal, currency string) (adapter.CouponVerdict, error)
	Calls        int
	LastBuyerID  string
}

func (m *MockCouponAuthority) Validate(ctx context.Context, buyerID, code, productRef string, price decimal.Decimal, currency string) (adapter.CouponVerdict, error) {
	m.Calls++
	m.LastBuyerID = buyerID
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, buyerID, code, productRef, price, currency)
	}
	return adapter.CouponVerdict{OK: false, Reason: "unknown_coupon"}, nil
}

// --- Locker ---

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string

	// TryLockErr simulates the lock backend being unreachable, as opposed
	// to a held key.
	TryLockErr error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string)}
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TryLockErr != nil {
		return "", m.TryLockErr
	}
	if _, ok := m.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	token := key + "-token"
	m.held[key] = token
	return token, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] != token {
		return domain.ErrOperationFailed
	}
	delete(m.held, key)
	return nil
}

// Hold marks a key as taken so TryLock fails, simulating a concurrent
// reconcile in flight.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = "foreign-token"
}

// --- Transaction manager ---

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

var _ usecase.Locker = (*MockLocker)(nil)
var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)
var _ repository.TransactionManager = (*MockTxManager)(nil)
var _ adapter.ProviderGateway = (*MockGateway)(nil)
var _ adapter.EntitlementService = (*MockEntitlement)(nil)
var _ adapter.CouponAuthority = (*MockCouponAuthority)(nil)
