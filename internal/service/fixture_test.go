package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cashier = int64(7)

type fixture struct {
	store     *store.Store
	inventory *InventoryService
	payments  *PaymentService
	orders    *OrderService
	events    *recordingPublisher
	renderer  *fakeRenderer
	keys      *memoryIdempotency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := storetest.New(t)
	events := &recordingPublisher{}
	renderer := &fakeRenderer{}
	keys := newMemoryIdempotency()
	settings := StaticSettings{Name: "Corner Cafe", Currency: "USD", DefaultTaxRate: decimal.Zero}

	inventory := NewInventoryService(s, events)
	payments := NewPaymentService(s, events)
	return &fixture{
		store:     s,
		inventory: inventory,
		payments:  payments,
		orders:    NewOrderService(s, inventory, payments, keys, renderer, settings, events),
		events:    events,
		renderer:  renderer,
		keys:      keys,
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p, err := f.inventory.CreateProduct(context.Background(), &CreateProductRequest{
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedBy: cashier,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.store.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

// requireReconciled checks that the inventory log explains the product's stock
func (f *fixture) requireReconciled(t *testing.T, productID int64) {
	t.Helper()
	rec, err := f.inventory.Reconcile(context.Background(), productID)
	require.NoError(t, err)
	require.Zero(t, rec.Drift, "stock %d, ledger %d", rec.Stock, rec.LedgerSum)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	low    []*models.StockLowEvent
}

func (p *recordingPublisher) add(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.add(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishOrderCompleted(_ context.Context, e *models.OrderCompletedEvent) error {
	p.add(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.add(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishPaymentRecorded(_ context.Context, e *models.PaymentRecordedEvent) error {
	p.add(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishStockLow(_ context.Context, e *models.StockLowEvent) error {
	p.add(e.EventType)
	p.mu.Lock()
	p.low = append(p.low, e)
	p.mu.Unlock()
	return nil
}

type fakeRenderer struct {
	calls int
	err   error
}

func (r *fakeRenderer) Render(_ context.Context, settings models.BusinessSettings, order *models.Order, items []models.OrderItem) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if settings.Name == "" || len(items) == 0 {
		return "", errors.New("incomplete receipt input")
	}
	return "receipts/" + order.CreatedAt.Format("20060102") + ".json", nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]int64)}
}

func (m *memoryIdempotency) Claim(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = 0
	return 0, true, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		m.keys[key] = orderID
	}
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
