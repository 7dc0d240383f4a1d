package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, customer_id, created_by, status, subtotal, discount, tax, total,
	discount_type, discount_value, tax_rate, payment_status, payment_method, notes, receipt_url,
	created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, product_name, unit_price, variant, quantity,
	subtotal, notes, created_at`

// NextOrderNumber allocates the next order number. Numbers are unique and
// increasing; an aborted transaction may leave a gap.
func (t *Tx) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, t.db, &n, "INSERT INTO order_numbers (created_at) VALUES ($1) RETURNING id", now())
	if err != nil {
		return 0, fmt.Errorf("failed to allocate order number: %w", err)
	}
	return n, nil
}

// CreateOrder inserts a new order row
func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	ts := now()
	order.CreatedAt = ts
	order.UpdatedAt = ts

	query := `
		INSERT INTO orders (order_number, customer_id, created_by, status, subtotal, discount, tax, total,
			discount_type, discount_value, tax_rate, payment_status, payment_method, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING id`

	return sqlx.GetContext(ctx, t.db, &order.ID, query,
		order.OrderNumber, order.CustomerID, order.CreatedBy, order.Status,
		order.Subtotal, order.Discount, order.Tax, order.Total,
		order.DiscountType, order.DiscountValue, order.TaxRate,
		order.PaymentStatus, order.PaymentMethod, order.Notes, ts)
}

// GetOrderByID retrieves an order by ID
func (q queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// LockOrder retrieves an order and holds its row lock until the transaction ends
func (t *Tx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return t.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1"+t.forUpdate(), id)
}

func (q queries) getOrder(ctx context.Context, query string, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.db, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderTotals stores repriced totals and the derived payment status
func (t *Tx) UpdateOrderTotals(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = now()
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET subtotal = $1, discount = $2, tax = $3, total = $4, payment_status = $5, updated_at = $6
		WHERE id = $7`,
		order.Subtotal, order.Discount, order.Tax, order.Total, order.PaymentStatus, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order totals: %w", err)
	}
	return nil
}

// UpdateOrderStatus updates order status
func (t *Tx) UpdateOrderStatus(ctx context.Context, order *models.Order, status models.OrderStatus) error {
	ts := now()
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3",
		status, ts, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = status
	order.UpdatedAt = ts
	return nil
}

// UpdatePaymentState stores the recomputed payment status and the payment method
func (t *Tx) UpdatePaymentState(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = now()
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, payment_method = $2, updated_at = $3 WHERE id = $4",
		order.PaymentStatus, order.PaymentMethod, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

// SetReceiptURL stores the rendered receipt location. It runs outside any
// order unit of work: a missing receipt never invalidates an order.
func (s *Store) SetReceiptURL(ctx context.Context, orderID int64, url string) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE orders SET receipt_url = $1, updated_at = $2 WHERE id = $3",
		url, now(), orderID)
	return err
}

// CreateOrderItem creates a new order item
func (t *Tx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	item.CreatedAt = now()
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, unit_price, variant, quantity, subtotal, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return sqlx.GetContext(ctx, t.db, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.UnitPrice, item.Variant,
		item.Quantity, item.Subtotal, item.Notes, item.CreatedAt)
}

// GetOrderItemsByOrderID retrieves all items for an order in insertion order
func (q queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q.db, &items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// OrderFilter narrows and orders ListOrders results
type OrderFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	CustomerID    *int64
	OrderNumber   *int64
	From          *time.Time
	To            *time.Time
	SortBy        string
	Desc          bool
	Limit         int
	Offset        int
}

var sortColumns = map[string]string{
	"created_at":   "created_at",
	"order_number": "order_number",
	"total":        "total",
}

// Normalize applies defaults and bounds to paging and sorting. An unknown
// sort column falls back to created_at; the direction is the caller's.
func (f *OrderFilter) Normalize() {
	if _, ok := sortColumns[f.SortBy]; !ok {
		f.SortBy = "created_at"
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ListOrders returns one page of orders and the number of orders matching the filter
func (q queries) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int, error) {
	f.Normalize()

	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", *f.CustomerID)
	}
	if f.OrderNumber != nil {
		add("order_number = $%d", *f.OrderNumber)
	}
	if f.From != nil {
		add("created_at >= $%d", f.From.UTC())
	}
	if f.To != nil {
		add("created_at < $%d", f.To.UTC())
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, q.db, &total, "SELECT COUNT(*) FROM orders"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		orderColumns, clause, sortColumns[f.SortBy], direction, direction, len(args)+1, len(args)+2)

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, q.db, &orders, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// CreatePayment appends a payment record
func (t *Tx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	payment.CreatedAt = now()
	query := `
		INSERT INTO payments (order_id, amount, method, reference, notes, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return sqlx.GetContext(ctx, t.db, &payment.ID, query,
		payment.OrderID, payment.Amount, payment.Method, payment.Reference, payment.Notes,
		payment.RecordedBy, payment.CreatedAt)
}

// GetPaymentsByOrderID retrieves the payments of an order, oldest first
func (q queries) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := sqlx.SelectContext(ctx, q.db, &payments, `
		SELECT id, order_id, amount, method, reference, notes, recorded_by, created_at
		FROM payments WHERE order_id = $1 ORDER BY id`, orderID)
	return payments, err
}

// SumPayments returns the total amount paid against an order
func (q queries) SumPayments(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := sqlx.GetContext(ctx, q.db, &sum,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1", orderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	return sum.Round(2), nil
}
