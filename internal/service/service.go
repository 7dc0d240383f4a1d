// Package service holds the order, payment and inventory use cases. Each
// public operation runs as one store unit of work; events and idempotency
// records are written only after that unit of work commits.
package service

import (
	"context"
	"errors"

	"pos-service/internal/models"
)

// EventPublisher publishes domain events. broker.EventPublisher implements it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
}

// IdempotencyStore deduplicates order creation. redisclient.Client implements it.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

// ReceiptRenderer turns a completed order into a durable document and returns its location.
type ReceiptRenderer interface {
	Render(ctx context.Context, settings models.BusinessSettings, order *models.Order, items []models.OrderItem) (string, error)
}

// SettingsProvider supplies read-only business settings
type SettingsProvider interface {
	Settings(ctx context.Context) (models.BusinessSettings, error)
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderCompleted(context.Context, *models.OrderCompletedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}

func (NopPublisher) PublishPaymentRecorded(context.Context, *models.PaymentRecordedEvent) error {
	return nil
}

func (NopPublisher) PublishStockLow(context.Context, *models.StockLowEvent) error {
	return nil
}

// failureReason labels a failed operation for metrics
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrDuplicateRequest):
		return "duplicate"
	default:
		return "db_error"
	}
}
