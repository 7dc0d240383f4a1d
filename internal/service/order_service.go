package service

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/pricing"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// releaseTimeout bounds the cleanup of a failed request's idempotency claim
const releaseTimeout = 5 * time.Second

// OrderService handles order business logic
type OrderService struct {
	store       *store.Store
	inventory   *InventoryService
	payments    *PaymentService
	idempotency IdempotencyStore
	renderer    ReceiptRenderer
	settings    SettingsProvider
	events      emitter
	logger      *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil, in
// which case idempotency keys are ignored.
func NewOrderService(
	store *store.Store,
	inventory *InventoryService,
	payments *PaymentService,
	idempotency IdempotencyStore,
	renderer ReceiptRenderer,
	settings SettingsProvider,
	publisher EventPublisher,
) *OrderService {
	logger := util.GetLogger()
	return &OrderService{
		store:       store,
		inventory:   inventory,
		payments:    payments,
		idempotency: idempotency,
		renderer:    renderer,
		settings:    settings,
		events:      newEmitter(publisher, logger),
		logger:      logger,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerID     *int64             `json:"customer_id,omitempty"`
	CreatedBy      int64              `json:"-"`
	Items          []OrderItemRequest `json:"items"`
	DiscountType   string             `json:"discount_type,omitempty"`
	DiscountValue  decimal.Decimal    `json:"discount_value"`
	TaxRate        *decimal.Decimal   `json:"tax_rate,omitempty"`
	Notes          *string            `json:"notes,omitempty"`
	Payment        *InitialPayment    `json:"payment,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Variant   *string `json:"variant,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// InitialPayment is a payment taken together with order creation
type InitialPayment struct {
	Amount    decimal.Decimal      `json:"amount"`
	Method    models.PaymentMethod `json:"method"`
	Reference *string              `json:"reference,omitempty"`
	Notes     *string              `json:"notes,omitempty"`
}

// OrderResult is the outcome of a write to an order
type OrderResult struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Payment  *PaymentResult     `json:"payment,omitempty"`
	Replayed bool               `json:"replayed,omitempty"`
}

// OrderDetail is an order with its items, payments and payment summary
type OrderDetail struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Payments []models.Payment   `json:"payments"`
	Summary  PaymentSummary     `json:"payment_summary"`
}

func validateItems(items []OrderItemRequest) error {
	if len(items) == 0 {
		return models.NewValidationError("items", "must not be empty")
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return models.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
	}
	return nil
}

func (r *CreateOrderRequest) validate() (pricing.Discount, error) {
	if err := validateItems(r.Items); err != nil {
		return pricing.Discount{}, err
	}

	discountType, err := pricing.ParseDiscountType(r.DiscountType)
	if err != nil {
		return pricing.Discount{}, err
	}

	if r.Payment != nil {
		payment := r.paymentRequest(0)
		if err := payment.validate(); err != nil {
			return pricing.Discount{}, err
		}
	}
	return pricing.Discount{Type: discountType, Value: r.DiscountValue}, nil
}

func (r *CreateOrderRequest) paymentRequest(orderID int64) *RecordPaymentRequest {
	return &RecordPaymentRequest{
		OrderID:    orderID,
		Amount:     r.Payment.Amount,
		Method:     r.Payment.Method,
		Reference:  r.Payment.Reference,
		Notes:      r.Payment.Notes,
		RecordedBy: r.CreatedBy,
	}
}

// CreateOrder prices the cart, reserves stock for every line and optionally
// records an initial payment, all in one unit of work. Any failure leaves
// no order, no stock change and no payment behind.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (result *OrderResult, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer func() { util.EndSpan(span, err) }()

	discount, err := req.validate()
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("create", failureReason(err)).Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		existingID, claimed, err := s.idempotency.Claim(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if !claimed {
			return s.replay(ctx, req.IdempotencyKey, existingID)
		}
		defer func() {
			if result == nil {
				s.releaseClaim(req.IdempotencyKey)
			}
		}()
	}

	taxRate, err := s.taxRate(ctx, req.TaxRate)
	if err != nil {
		return nil, err
	}

	var (
		order   *models.Order
		items   []models.OrderItem
		payment *PaymentResult
		alerts  []models.Product
	)
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		number, err := tx.NextOrderNumber(ctx)
		if err != nil {
			return err
		}

		if req.CustomerID != nil {
			if _, err := tx.GetCustomerByID(ctx, *req.CustomerID); err != nil {
				return err
			}
		}

		products, err := loadProducts(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		var lines []pricing.Line
		items, lines, err = snapshotItems(req.Items, products)
		if err != nil {
			return err
		}

		totals := pricing.Calculate(lines, discount, taxRate)
		order = &models.Order{
			OrderNumber:   number,
			CustomerID:    req.CustomerID,
			CreatedBy:     req.CreatedBy,
			Status:        models.OrderStatusPending,
			Subtotal:      totals.Subtotal,
			Discount:      totals.Discount,
			Tax:           totals.Tax,
			Total:         totals.Total,
			DiscountType:  discount.Type,
			DiscountValue: discount.Value,
			TaxRate:       taxRate,
			PaymentStatus: models.PaymentStatusUnpaid,
			Notes:         req.Notes,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := tx.CreateOrderItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		alerts, err = s.inventory.reserveItems(ctx, tx, order, items, products, req.CreatedBy)
		if err != nil {
			return err
		}

		if req.Payment != nil {
			payment, err = s.payments.record(ctx, tx, order, req.paymentRequest(order.ID))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("create", failureReason(err)).Inc()
		s.logger.Warn("Order creation rolled back", zap.Error(err))
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	span.SetAttributes(attribute.Int64("order_id", order.ID))
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)))

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Complete(ctx, req.IdempotencyKey, order.ID); err != nil {
			s.logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}

	s.events.orderCreated(ctx, order, items)
	if payment != nil {
		s.payments.afterRecord(ctx, order, payment)
	}
	s.inventory.raiseLowStock(ctx, alerts)

	return &OrderResult{Order: order, Items: items, Payment: payment}, nil
}

// replay answers a request whose idempotency key was already claimed
func (s *OrderService) replay(ctx context.Context, key string, orderID int64) (*OrderResult, error) {
	if orderID == 0 {
		return nil, models.ErrDuplicateRequest
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", orderID))

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order, Items: items, Replayed: true}, nil
}

func (s *OrderService) releaseClaim(key string) {
	// The request context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Error("Failed to release idempotency key",
			zap.String("idempotency_key", key),
			zap.Error(err))
	}
}

func (s *OrderService) taxRate(ctx context.Context, requested *decimal.Decimal) (decimal.Decimal, error) {
	if requested != nil {
		return *requested, nil
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load business settings: %w", err)
	}
	return settings.DefaultTaxRate, nil
}

// AddItems appends lines to a pending order, reserves stock for them and
// reprices the whole order with its stored discount and tax rate.
func (s *OrderService) AddItems(ctx context.Context, orderID int64, reqItems []OrderItemRequest, actingUser int64) (result *OrderResult, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddItems", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	if err := validateItems(reqItems); err != nil {
		return nil, err
	}

	var (
		order  *models.Order
		items  []models.OrderItem
		alerts []models.Product
	)
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return &models.InvalidStateError{OrderID: order.ID, Status: order.Status, Operation: "add items to"}
		}

		existing, err := tx.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		products, err := loadProducts(ctx, tx, reqItems)
		if err != nil {
			return err
		}
		added, _, err := snapshotItems(reqItems, products)
		if err != nil {
			return err
		}

		for i := range added {
			added[i].OrderID = order.ID
			if err := tx.CreateOrderItem(ctx, &added[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		alerts, err = s.inventory.reserveItems(ctx, tx, order, added, products, actingUser)
		if err != nil {
			return err
		}

		items = append(existing, added...)
		lines := make([]pricing.Line, 0, len(items))
		for _, item := range items {
			lines = append(lines, pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
		}
		totals := pricing.Calculate(lines,
			pricing.Discount{Type: order.DiscountType, Value: order.DiscountValue}, order.TaxRate)

		paid, err := tx.SumPayments(ctx, orderID)
		if err != nil {
			return err
		}

		order.Subtotal = totals.Subtotal
		order.Discount = totals.Discount
		order.Tax = totals.Tax
		order.Total = totals.Total
		order.PaymentStatus = models.DerivePaymentStatus(paid, order.Total)
		return tx.UpdateOrderTotals(ctx, order)
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("add_items", failureReason(err)).Inc()
		return nil, err
	}

	s.logger.Info("Items added to order",
		zap.Int64("order_id", orderID),
		zap.Int("added", len(reqItems)),
		zap.String("total", order.Total.StringFixed(2)))
	s.inventory.raiseLowStock(ctx, alerts)

	return &OrderResult{Order: order, Items: items}, nil
}

var statusOperations = map[models.OrderStatus]string{
	models.OrderStatusPending:   "reopen",
	models.OrderStatusCompleted: "complete",
	models.OrderStatusCancelled: "cancel",
}

// UpdateStatus moves an order through its state machine. Moving to
// cancelled is the same as CancelOrder.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus, actingUser int64) (order *models.Order, err error) {
	if !status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown order status %q", status))
	}
	if status == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderID, actingUser)
	}

	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)))
	defer func() { util.EndSpan(span, err) }()

	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(status) {
			return &models.InvalidStateError{OrderID: order.ID, Status: order.Status, Operation: statusOperations[status]}
		}
		return tx.UpdateOrderStatus(ctx, order, status)
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("update_status", failureReason(err)).Inc()
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("status", string(status)),
		zap.Int64("acting_user", actingUser))

	if status == models.OrderStatusCompleted {
		util.OrdersCompletedTotal.Inc()
		s.events.orderCompleted(ctx, order)
	}
	return order, nil
}

// CancelOrder returns the stock of every item and marks the order cancelled.
// Payments are left untouched.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, actingUser int64) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	var prev models.OrderStatus
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
			return &models.InvalidStateError{OrderID: order.ID, Status: order.Status, Operation: "cancel"}
		}
		prev = order.Status

		items, err := tx.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.inventory.releaseItems(ctx, tx, order, items, actingUser); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, order, models.OrderStatusCancelled)
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("cancel", failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("prev_status", string(prev)),
		zap.Int64("acting_user", actingUser))
	s.events.orderCancelled(ctx, order, prev, actingUser)

	return order, nil
}

// GetOrder retrieves an order with its items, payments and payment summary,
// all read from one snapshot
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (detail *OrderDetail, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	err = s.store.ReadSnapshot(ctx, func(tx *store.Tx) error {
		order, err := tx.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		items, err := tx.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		payments, err := tx.GetPaymentsByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.Amount)
		}
		detail = &OrderDetail{
			Order:    order,
			Items:    items,
			Payments: payments,
			Summary:  newPaymentSummary(paid, order.Total),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// OrderPage is one page of ListOrders results
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListOrders returns orders matching the filter
func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) (*OrderPage, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	filter.Normalize()
	orders, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: orders, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GenerateReceipt renders the receipt of a completed order and stores its
// location on the order. It runs outside the order's unit of work and can be
// retried: a failure never affects the order itself.
func (s *OrderService) GenerateReceipt(ctx context.Context, orderID int64) (url string, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GenerateReceipt", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	defer func() {
		if err != nil {
			util.ReceiptsRenderedTotal.WithLabelValues("failure").Inc()
			return
		}
		util.ReceiptsRenderedTotal.WithLabelValues("success").Inc()
	}()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != models.OrderStatusCompleted {
		return "", &models.InvalidStateError{OrderID: order.ID, Status: order.Status, Operation: "generate receipt for"}
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}

	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load business settings: %w", err)
	}

	url, err = s.renderer.Render(ctx, settings, order, items)
	if err != nil {
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}

	if err := s.store.SetReceiptURL(ctx, orderID, url); err != nil {
		return "", fmt.Errorf("failed to store receipt url: %w", err)
	}

	s.logger.Info("Receipt generated", zap.Int64("order_id", orderID), zap.String("url", url))
	return url, nil
}

// loadProducts reads every product the request references inside tx
func loadProducts(ctx context.Context, tx *store.Tx, reqItems []OrderItemRequest) (map[int64]*models.Product, error) {
	ids := make([]int64, 0, len(reqItems))
	seen := make(map[int64]bool, len(reqItems))
	for _, item := range reqItems {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := tx.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, &models.NotFoundError{Entity: "product", ID: id}
		}
	}
	return products, nil
}

// snapshotItems copies the current name and price of each product into new
// order items. Later price changes never reach an existing item.
func snapshotItems(reqItems []OrderItemRequest, products map[int64]*models.Product) ([]models.OrderItem, []pricing.Line, error) {
	items := make([]models.OrderItem, 0, len(reqItems))
	lines := make([]pricing.Line, 0, len(reqItems))

	for i, req := range reqItems {
		product := products[req.ProductID]
		if req.Variant != nil && len(product.Variants) > 0 && !product.HasVariant(*req.Variant) {
			return nil, nil, models.NewValidationError(fmt.Sprintf("items[%d].variant", i),
				fmt.Sprintf("%q is not a variant of product %d", *req.Variant, product.ID))
		}

		line := pricing.Line{UnitPrice: product.Price, Quantity: req.Quantity}
		productID := product.ID
		items = append(items, models.OrderItem{
			ProductID:   &productID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Variant:     req.Variant,
			Quantity:    req.Quantity,
			Subtotal:    line.Subtotal().Round(2),
			Notes:       req.Notes,
		})
		lines = append(lines, line)
	}
	return items, lines, nil
}
