package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	latte := f.product(t, "Latte", "12.99", 10)
	bagel := f.product(t, "Bagel", "16.00", 5)
	taxRate := dec("16")

	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy: cashier,
		Items: []OrderItemRequest{
			{ProductID: latte.ID, Quantity: 3},
			{ProductID: bagel.ID, Quantity: 2},
		},
		DiscountType:  "percentage",
		DiscountValue: dec("10"),
		TaxRate:       &taxRate,
	})
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assertDecimal(t, "70.97", order.Subtotal)
	assertDecimal(t, "7.10", order.Discount)
	assertDecimal(t, "10.22", order.Tax)
	assertDecimal(t, "74.09", order.Total)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "Latte", res.Items[0].ProductName)
	assertDecimal(t, "38.97", res.Items[0].Subtotal)

	assert.Equal(t, 7, f.stock(t, latte.ID))
	assert.Equal(t, 3, f.stock(t, bagel.ID))
	f.requireReconciled(t, latte.ID)
	f.requireReconciled(t, bagel.ID)
	assert.Equal(t, 1, f.events.count(models.EventTypeOrderCreated))

	t.Run("stored order matches the result", func(t *testing.T) {
		detail, err := f.orders.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assertDecimal(t, "74.09", detail.Order.Total)
		assert.Equal(t, order.OrderNumber, detail.Order.OrderNumber)
		assert.Len(t, detail.Items, 2)
		assert.Empty(t, detail.Payments)
		assertDecimal(t, "74.09", detail.Summary.Balance)
	})
}

func TestCreateOrderDefaultsToSettingsTaxRate(t *testing.T) {
	f := newFixture(t)
	f.orders.settings = StaticSettings{Name: "Corner Cafe", DefaultTaxRate: dec("10")}
	p := f.product(t, "Tea", "20.00", 3)

	res, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		CreatedBy: cashier,
		Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assertDecimal(t, "2", res.Order.Tax)
	assertDecimal(t, "22", res.Order.Total)
	assertDecimal(t, "10", res.Order.TaxRate)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Muffin", "3.50", 10)
	missing := int64(404)

	tests := []struct {
		name string
		req  *CreateOrderRequest
		want error
	}{
		{
			name: "empty cart",
			req:  &CreateOrderRequest{CreatedBy: cashier},
			want: models.ErrValidation,
		},
		{
			name: "zero quantity",
			req:  &CreateOrderRequest{Items: []OrderItemRequest{{ProductID: p.ID, Quantity: 0}}},
			want: models.ErrValidation,
		},
		{
			name: "unknown discount type",
			req: &CreateOrderRequest{
				Items:        []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
				DiscountType: "bogo",
			},
			want: models.ErrValidation,
		},
		{
			name: "non-positive initial payment",
			req: &CreateOrderRequest{
				Items:   []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
				Payment: &InitialPayment{Amount: decimal.Zero, Method: models.PaymentMethodCash},
			},
			want: models.ErrInvalidAmount,
		},
		{
			name: "unknown product",
			req:  &CreateOrderRequest{Items: []OrderItemRequest{{ProductID: 9999, Quantity: 1}}},
			want: models.ErrNotFound,
		},
		{
			name: "unknown customer",
			req: &CreateOrderRequest{
				CustomerID: &missing,
				Items:      []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
			},
			want: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 10, f.stock(t, p.ID))
	page, err := f.orders.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plenty := f.product(t, "Water", "1.00", 5)
	scarce := f.product(t, "Cake", "4.00", 1)

	_, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy: cashier,
		Items: []OrderItemRequest{
			{ProductID: plenty.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 2},
		},
		Payment: &InitialPayment{Amount: dec("10"), Method: models.PaymentMethodCash},
	})

	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, scarce.ID, stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, f.stock(t, plenty.ID))
	assert.Equal(t, 1, f.stock(t, scarce.ID))
	f.requireReconciled(t, plenty.ID)
	f.requireReconciled(t, scarce.ID)

	page, err := f.orders.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Zero(t, f.events.count(models.EventTypeOrderCreated))
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Last croissant", "3.00", 1)

	const buyers = 10
	var (
		mu        sync.Mutex
		succeeded int
		rejected  int
		g         errgroup.Group
	)
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
				CreatedBy: cashier,
				Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientStock):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, rejected)
	assert.Equal(t, 0, f.stock(t, p.ID))
	f.requireReconciled(t, p.ID)
}

func TestConcurrentOrderNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Cookie", "1.50", 100)

	const orders = 20
	var (
		mu      sync.Mutex
		numbers = make(map[int64]bool)
		g       errgroup.Group
	)
	for i := 0; i < orders; i++ {
		g.Go(func() error {
			res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
				CreatedBy: cashier,
				Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			numbers[res.Order.OrderNumber] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, numbers, orders)
	assert.Equal(t, 100-orders, f.stock(t, p.ID))
}

func TestCreateOrderWithPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sandwich", "25.00", 4)

	t.Run("full payment completes the order", func(t *testing.T) {
		res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
			CreatedBy: cashier,
			Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 2}},
			Payment:   &InitialPayment{Amount: dec("50"), Method: models.PaymentMethodCreditCard},
		})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCompleted, res.Order.Status)
		assert.Equal(t, models.PaymentStatusPaid, res.Order.PaymentStatus)
		require.NotNil(t, res.Order.PaymentMethod)
		assert.Equal(t, models.PaymentMethodCreditCard, *res.Order.PaymentMethod)
		require.NotNil(t, res.Payment)
		assert.True(t, res.Payment.OrderCompleted)
		assert.Equal(t, 1, f.events.count(models.EventTypeOrderCompleted))
	})

	t.Run("partial payment keeps it pending", func(t *testing.T) {
		res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
			CreatedBy: cashier,
			Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
			Payment:   &InitialPayment{Amount: dec("10"), Method: models.PaymentMethodCash},
		})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, res.Order.Status)
		assert.Equal(t, models.PaymentStatusPartial, res.Order.PaymentStatus)
		assertDecimal(t, "15", res.Payment.Summary.Balance)
	})
}

func TestDiscountLargerThanSubtotal(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Gift", "100.00", 1)
	taxRate := dec("10")

	res, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		CreatedBy:     cashier,
		Items:         []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		DiscountType:  "fixed",
		DiscountValue: dec("500"),
		TaxRate:       &taxRate,
	})
	require.NoError(t, err)
	assertDecimal(t, "100", res.Order.Discount)
	assertDecimal(t, "0", res.Order.Tax)
	assertDecimal(t, "0", res.Order.Total)
	assert.Equal(t, models.PaymentStatusUnpaid, res.Order.PaymentStatus)
}

func TestNegativePricingInputsClamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Scone", "10.00", 5)
	negativeRate := dec("-8")

	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy:     cashier,
		Items:         []OrderItemRequest{{ProductID: p.ID, Quantity: 2}},
		DiscountType:  "percentage",
		DiscountValue: dec("-25"),
		TaxRate:       &negativeRate,
	})
	require.NoError(t, err)
	assertDecimal(t, "20", res.Order.Subtotal)
	assertDecimal(t, "0", res.Order.Discount)
	assertDecimal(t, "0", res.Order.Tax)
	assertDecimal(t, "20", res.Order.Total)

	// repricing with the stored inputs clamps the same way
	added, err := f.orders.AddItems(ctx, res.Order.ID, []OrderItemRequest{{ProductID: p.ID, Quantity: 1}}, cashier)
	require.NoError(t, err)
	assertDecimal(t, "0", added.Order.Discount)
	assertDecimal(t, "30", added.Order.Total)
}

func TestVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.inventory.CreateProduct(ctx, &CreateProductRequest{
		Name: "T-shirt", Price: dec("15"), Stock: 5, Variants: []string{"S", "M", "L"},
	})
	require.NoError(t, err)

	medium, xl := "M", "XL"
	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: p.ID, Quantity: 1, Variant: &medium}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Items[0].Variant)
	assert.Equal(t, "M", *res.Items[0].Variant)

	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: p.ID, Quantity: 1, Variant: &xl}},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestAddItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coffee := f.product(t, "Coffee", "4.00", 10)
	donut := f.product(t, "Donut", "2.50", 10)

	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy:     cashier,
		Items:         []OrderItemRequest{{ProductID: coffee.ID, Quantity: 2}},
		DiscountType:  "percentage",
		DiscountValue: dec("50"),
		Payment:       &InitialPayment{Amount: dec("4"), Method: models.PaymentMethodCash},
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, res.Order.Status)

	t.Run("completed order rejects new items", func(t *testing.T) {
		_, err := f.orders.AddItems(ctx, res.Order.ID, []OrderItemRequest{{ProductID: donut.ID, Quantity: 1}}, cashier)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.Equal(t, 10, f.stock(t, donut.ID))
	})

	pending, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy:     cashier,
		Items:         []OrderItemRequest{{ProductID: coffee.ID, Quantity: 1}},
		DiscountType:  "percentage",
		DiscountValue: dec("50"),
		Payment:       &InitialPayment{Amount: dec("1"), Method: models.PaymentMethodCash},
	})
	require.NoError(t, err)
	assertDecimal(t, "2", pending.Order.Total)

	added, err := f.orders.AddItems(ctx, pending.Order.ID, []OrderItemRequest{{ProductID: donut.ID, Quantity: 2}}, cashier)
	require.NoError(t, err)
	assert.Len(t, added.Items, 2)
	assertDecimal(t, "9", added.Order.Subtotal)
	assertDecimal(t, "4.5", added.Order.Discount)
	assertDecimal(t, "4.5", added.Order.Total)
	assert.Equal(t, models.PaymentStatusPartial, added.Order.PaymentStatus)
	assert.Equal(t, 8, f.stock(t, donut.ID))
	assert.Equal(t, 7, f.stock(t, coffee.ID))
	f.requireReconciled(t, donut.ID)
	f.requireReconciled(t, coffee.ID)

	_, err = f.orders.AddItems(ctx, pending.Order.ID, []OrderItemRequest{{ProductID: donut.ID, Quantity: 50}}, cashier)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	detail, err := f.orders.GetOrder(ctx, pending.Order.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Items, 2)
	assertDecimal(t, "4.5", detail.Order.Total)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Scone", "3.00", 5)

	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy: cashier,
		Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	id := res.Order.ID

	order, err := f.orders.UpdateStatus(ctx, id, models.OrderStatusCompleted, cashier)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, 1, f.events.count(models.EventTypeOrderCompleted))

	_, err = f.orders.UpdateStatus(ctx, id, models.OrderStatusPending, cashier)
	var stateErr *models.InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, models.OrderStatusCompleted, stateErr.Status)

	_, err = f.orders.UpdateStatus(ctx, id, "refunded", cashier)
	assert.ErrorIs(t, err, models.ErrValidation)

	order, err = f.orders.UpdateStatus(ctx, id, models.OrderStatusCancelled, cashier)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))

	_, err = f.orders.UpdateStatus(ctx, id, models.OrderStatusCompleted, cashier)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = f.orders.UpdateStatus(ctx, 9999, models.OrderStatusCompleted, cashier)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bread := f.product(t, "Bread", "5.00", 6)
	jam := f.product(t, "Jam", "7.50", 3)

	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy: cashier,
		Items: []OrderItemRequest{
			{ProductID: bread.ID, Quantity: 2},
			{ProductID: jam.ID, Quantity: 3},
		},
		Payment: &InitialPayment{Amount: dec("32.50"), Method: models.PaymentMethodDebitCard},
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, 4, f.stock(t, bread.ID))
	assert.Equal(t, 0, f.stock(t, jam.ID))

	order, err := f.orders.CancelOrder(ctx, res.Order.ID, cashier)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 6, f.stock(t, bread.ID))
	assert.Equal(t, 3, f.stock(t, jam.ID))
	f.requireReconciled(t, bread.ID)
	f.requireReconciled(t, jam.ID)
	assert.Equal(t, 1, f.events.count(models.EventTypeOrderCancelled))

	t.Run("payments are kept", func(t *testing.T) {
		payments, err := f.payments.ListPayments(ctx, res.Order.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assertDecimal(t, "32.50", payments[0].Amount)
	})

	t.Run("second cancel fails and changes nothing", func(t *testing.T) {
		_, err := f.orders.CancelOrder(ctx, res.Order.ID, cashier)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.Equal(t, 6, f.stock(t, bread.ID))
		assert.Equal(t, 3, f.stock(t, jam.ID))
	})

	t.Run("history shows sale then reversal", func(t *testing.T) {
		seq, err := f.inventory.History(ctx, jam.ID, nil)
		require.NoError(t, err)
		var types []models.InventoryTransactionType
		for entry, err := range seq {
			require.NoError(t, err)
			types = append(types, entry.Type)
		}
		assert.Equal(t, []models.InventoryTransactionType{
			models.InventoryTxRestock,
			models.InventoryTxSale,
			models.InventoryTxCancellationReversal,
		}, types)
	})
}

func TestIdempotentCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Bagel", "2.00", 5)

	req := func() *CreateOrderRequest {
		return &CreateOrderRequest{
			CreatedBy:      cashier,
			Items:          []OrderItemRequest{{ProductID: p.ID, Quantity: 2}},
			IdempotencyKey: "till-1-0001",
		}
	}

	first, err := f.orders.CreateOrder(ctx, req())
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.orders.CreateOrder(ctx, req())
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 3, f.stock(t, p.ID))

	t.Run("in-flight key is a duplicate", func(t *testing.T) {
		_, _, err := f.keys.Claim(ctx, "till-1-0002")
		require.NoError(t, err)
		r := req()
		r.IdempotencyKey = "till-1-0002"
		_, err = f.orders.CreateOrder(ctx, r)
		assert.ErrorIs(t, err, models.ErrDuplicateRequest)
	})

	t.Run("failed request releases its key", func(t *testing.T) {
		r := req()
		r.IdempotencyKey = "till-1-0003"
		r.Items[0].Quantity = 50
		_, err := f.orders.CreateOrder(ctx, r)
		require.ErrorIs(t, err, models.ErrInsufficientStock)

		r.Items[0].Quantity = 1
		res, err := f.orders.CreateOrder(ctx, r)
		require.NoError(t, err)
		assert.False(t, res.Replayed)
	})
}

func TestLowStockAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	threshold := 2

	p, err := f.inventory.CreateProduct(ctx, &CreateProductRequest{
		Name: "Oat milk", Price: dec("3"), Stock: 5, LowStockAlert: &threshold,
	})
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{Items: []OrderItemRequest{{ProductID: p.ID, Quantity: 2}}})
	require.NoError(t, err)
	assert.Zero(t, f.events.count(models.EventTypeStockLow))

	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{Items: []OrderItemRequest{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, 1, f.events.count(models.EventTypeStockLow))
	assert.Equal(t, 2, f.events.low[0].Stock)
	assert.Equal(t, 2, f.events.low[0].Threshold)

	// already below the threshold: no second alert
	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{Items: []OrderItemRequest{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.events.count(models.EventTypeStockLow))
}

func TestGenerateReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Pie", "8.00", 5)

	res, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		CreatedBy: cashier,
		Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.orders.GenerateReceipt(ctx, res.Order.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Zero(t, f.renderer.calls)

	_, err = f.payments.RecordPayment(ctx, &RecordPaymentRequest{
		OrderID: res.Order.ID, Amount: dec("8"), Method: models.PaymentMethodCash, RecordedBy: cashier,
	})
	require.NoError(t, err)

	t.Run("render failure leaves the order intact", func(t *testing.T) {
		f.renderer.err = errors.New("disk full")
		defer func() { f.renderer.err = nil }()

		_, err := f.orders.GenerateReceipt(ctx, res.Order.ID)
		require.Error(t, err)

		detail, err := f.orders.GetOrder(ctx, res.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCompleted, detail.Order.Status)
		assert.Nil(t, detail.Order.ReceiptURL)
	})

	url, err := f.orders.GenerateReceipt(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	detail, err := f.orders.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Order.ReceiptURL)
	assert.Equal(t, url, *detail.Order.ReceiptURL)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Juice", "5.00", 50)

	for qty := 1; qty <= 3; qty++ {
		_, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
			CreatedBy: cashier,
			Items:     []OrderItemRequest{{ProductID: p.ID, Quantity: qty}},
		})
		require.NoError(t, err)
	}

	page, err := f.orders.ListOrders(ctx, store.OrderFilter{SortBy: "total", Desc: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Orders, 2)
	assertDecimal(t, "15", page.Orders[0].Total)
	assert.Equal(t, 2, page.Limit)

	t.Run("default column keeps the requested direction", func(t *testing.T) {
		page, err := f.orders.ListOrders(ctx, store.OrderFilter{Desc: false, Limit: 3})
		require.NoError(t, err)
		require.Len(t, page.Orders, 3)
		for i := 1; i < len(page.Orders); i++ {
			assert.Less(t, page.Orders[i-1].OrderNumber, page.Orders[i].OrderNumber)
		}

		page, err = f.orders.ListOrders(ctx, store.OrderFilter{SortBy: "unknown", Desc: true, Limit: 3})
		require.NoError(t, err)
		require.Len(t, page.Orders, 3)
		assert.Greater(t, page.Orders[0].OrderNumber, page.Orders[2].OrderNumber)
	})
}
