package service

import (
	"context"
	"time"

	"pos-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// emitter publishes events after commit. A failed publish is logged and
// never changes the result of the committed operation.
type emitter struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func newEmitter(publisher EventPublisher, logger *zap.Logger) emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return emitter{publisher: publisher, logger: logger}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func (e emitter) orderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	data := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CreatedBy:   order.CreatedBy,
		Total:       order.Total,
		Items:       data,
	}
	if err := e.publisher.PublishOrderCreated(ctx, event); err != nil {
		e.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (e emitter) orderCompleted(ctx context.Context, order *models.Order) {
	event := &models.OrderCompletedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCompleted),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
	}
	if err := e.publisher.PublishOrderCompleted(ctx, event); err != nil {
		e.logger.Error("Failed to publish OrderCompleted event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (e emitter) orderCancelled(ctx context.Context, order *models.Order, prev models.OrderStatus, by int64) {
	event := &models.OrderCancelledEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PrevStatus:  prev,
		CancelledBy: by,
	}
	if err := e.publisher.PublishOrderCancelled(ctx, event); err != nil {
		e.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (e emitter) paymentRecorded(ctx context.Context, result *PaymentResult) {
	event := &models.PaymentRecordedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePaymentRecorded),
		OrderID:       result.Payment.OrderID,
		PaymentID:     result.Payment.ID,
		Amount:        result.Payment.Amount,
		Method:        result.Payment.Method,
		PaymentStatus: result.Summary.Status,
		Overpaid:      result.Overpaid,
	}
	if err := e.publisher.PublishPaymentRecorded(ctx, event); err != nil {
		e.logger.Error("Failed to publish PaymentRecorded event",
			zap.Int64("order_id", result.Payment.OrderID), zap.Error(err))
	}
}

func (e emitter) stockLow(ctx context.Context, products []models.Product) {
	for _, p := range products {
		if p.LowStockAlert == nil {
			continue
		}
		event := &models.StockLowEvent{
			BaseEvent: newBaseEvent(models.EventTypeStockLow),
			ProductID: p.ID,
			Name:      p.Name,
			Stock:     p.Stock,
			Threshold: *p.LowStockAlert,
		}
		if err := e.publisher.PublishStockLow(ctx, event); err != nil {
			e.logger.Error("Failed to publish StockLow event", zap.Int64("product_id", p.ID), zap.Error(err))
		}
	}
}
