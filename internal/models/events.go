package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated    = "ORDER_CREATED"
	EventTypeOrderCompleted  = "ORDER_COMPLETED"
	EventTypeOrderCancelled  = "ORDER_CANCELLED"
	EventTypePaymentRecorded = "PAYMENT_RECORDED"
	EventTypeStockLow        = "STOCK_LOW"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber int64           `json:"order_number"`
	CreatedBy   int64           `json:"created_by"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderItemData `json:"items"`
}

// OrderCompletedEvent published when an order reaches completed
type OrderCompletedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber int64           `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
}

// OrderCancelledEvent published when an order is cancelled and its stock released
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     int64       `json:"order_id"`
	OrderNumber int64       `json:"order_number"`
	PrevStatus  OrderStatus `json:"prev_status"`
	CancelledBy int64       `json:"cancelled_by"`
}

// PaymentRecordedEvent published for every appended payment
type PaymentRecordedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	PaymentID     int64           `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Overpaid      bool            `json:"overpaid"`
}

// StockLowEvent published when stock falls to or below a product's alert threshold
type StockLowEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID *int64          `json:"product_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
