package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable catalog entry. Only Stock is mutated by order processing.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Stock         int             `db:"stock" json:"stock"`
	LowStockAlert *int            `db:"low_stock_alert" json:"low_stock_alert,omitempty"`
	Variants      Variants        `db:"variants" json:"variants,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// HasVariant reports whether label is one of the product's variants.
func (p *Product) HasVariant(label string) bool {
	for _, v := range p.Variants {
		if v == label {
			return true
		}
	}
	return false
}

// IsLowStock reports whether stock has fallen to or below the alert threshold.
func (p *Product) IsLowStock() bool {
	return p.LowStockAlert != nil && p.Stock <= *p.LowStockAlert
}

// Variants is an ordered set of variant labels, stored as a JSON array.
type Variants []string

// Value implements driver.Valuer
func (v Variants) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (v *Variants) Scan(src interface{}) error {
	var raw []byte
	switch t := src.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		return fmt.Errorf("unsupported variants type %T", src)
	}
	if len(raw) == 0 {
		*v = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(v))
}

// Customer is referenced by orders; it is managed elsewhere.
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a single customer transaction
type Order struct {
	ID            int64           `db:"id" json:"id"`
	OrderNumber   int64           `db:"order_number" json:"order_number"`
	CustomerID    *int64          `db:"customer_id" json:"customer_id,omitempty"`
	CreatedBy     int64           `db:"created_by" json:"created_by"`
	Status        OrderStatus     `db:"status" json:"status"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	Total         decimal.Decimal `db:"total" json:"total"`
	DiscountType  DiscountType    `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
	TaxRate       decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentMethod *PaymentMethod  `db:"payment_method" json:"payment_method,omitempty"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	ReceiptURL    *string         `db:"receipt_url" json:"receipt_url,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable snapshot of a product line at the time it was ordered.
// ProductID becomes nil once the product is deleted.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   *int64          `db:"product_id" json:"product_id,omitempty"`
	ProductName string          `db:"product_name" json:"product_name"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Variant     *string         `db:"variant" json:"variant,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Subtotal    decimal.Decimal `db:"subtotal" json:"subtotal"`
	Notes       *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Payment is an append-only record of money received against an order
type Payment struct {
	ID         int64           `db:"id" json:"id"`
	OrderID    int64           `db:"order_id" json:"order_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     PaymentMethod   `db:"method" json:"method"`
	Reference  *string         `db:"reference" json:"reference,omitempty"`
	Notes      *string         `db:"notes" json:"notes,omitempty"`
	RecordedBy int64           `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// InventoryTransaction explains one stock mutation. Quantity is signed.
type InventoryTransaction struct {
	ID        int64                    `db:"id" json:"id"`
	ProductID int64                    `db:"product_id" json:"product_id"`
	Quantity  int                      `db:"quantity" json:"quantity"`
	Type      InventoryTransactionType `db:"type" json:"type"`
	OrderID   *int64                   `db:"order_id" json:"order_id,omitempty"`
	Reference *string                  `db:"reference" json:"reference,omitempty"`
	Notes     *string                  `db:"notes" json:"notes,omitempty"`
	CreatedBy int64                    `db:"created_by" json:"created_by"`
	CreatedAt time.Time                `db:"created_at" json:"created_at"`
}

// BusinessSettings is read-only input to pricing and receipts
type BusinessSettings struct {
	Name           string          `json:"name"`
	Address        string          `json:"address"`
	Phone          string          `json:"phone"`
	Currency       string          `json:"currency"`
	DefaultTaxRate decimal.Decimal `json:"default_tax_rate"`
	ReceiptFooter  string          `json:"receipt_footer"`
}

// OrderStatus is the order lifecycle state
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the order state machine:
// pending -> completed, pending -> cancelled, completed -> cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	case OrderStatusCompleted:
		return next == OrderStatusCancelled
	}
	return false
}

// PaymentStatus classifies how much of the total has been paid
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// DerivePaymentStatus is the only way a payment status is computed.
// Nothing paid is unpaid even when the total is zero.
func DerivePaymentStatus(totalPaid, total decimal.Decimal) PaymentStatus {
	switch {
	case !totalPaid.IsPositive():
		return PaymentStatusUnpaid
	case totalPaid.LessThan(total):
		return PaymentStatusPartial
	default:
		return PaymentStatusPaid
	}
}

// PaymentMethod is how a payment was tendered
type PaymentMethod string

// Payment methods
const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodTransfer   PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodTransfer:
		return true
	}
	return false
}

// DiscountType selects how DiscountValue is applied
type DiscountType string

// Discount types
const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// InventoryTransactionType classifies a stock mutation
type InventoryTransactionType string

// Inventory transaction types
const (
	InventoryTxSale                 InventoryTransactionType = "sale"
	InventoryTxCancellationReversal InventoryTransactionType = "cancellation_reversal"
	InventoryTxManualAdjustment     InventoryTransactionType = "manual_adjustment"
	InventoryTxRestock              InventoryTransactionType = "restock"
)
